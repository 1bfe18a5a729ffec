package analysis

const validResultJSON = `{
  "overallMatch": "Strong backend fit.",
  "hardSkills": ["Go", "PostgreSQL"],
  "softSkills": ["Communication"],
  "experienceMatch": "Five years building APIs.",
  "qualifications": ["BSc Computer Science"],
  "missingKeywords": ["Kubernetes"],
  "matchScore": 82,
  "categoryScores": {
    "searchability": 90,
    "hardSkills": 80,
    "softSkills": 70,
    "recruiterTips": 60,
    "formatting": 100
  },
  "categoryFeedback": {
    "searchability": [{"issue": "Contact info present", "status": "pass"}],
    "hardSkills": [{"issue": "Kubernetes missing", "status": "fail", "tip": "Mention container orchestration"}],
    "softSkills": [],
    "recruiterTips": [{"issue": "Quantify impact", "status": "warning", "tip": "Add metrics"}],
    "formatting": [],
    "experience": []
  }
}`

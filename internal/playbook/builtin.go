package playbook

// Builtin is the default playbook table. Keywords and questions are
// product copy; edit deliberately.
var Builtin = Table{
	{
		Industry: "SaaS / B2B Software",
		Keywords: []string{"saas", "b2b", "software", "platform", "subscription", "enterprise", "crm", "erp", "api"},
		Questions: []string{
			"What's your current MRR or ARR? How many paying customers?",
			"What's your average contract value and sales cycle length?",
			"Who is the buyer vs. the user? How do you reach them?",
			"What's your churn rate? What drives cancellations?",
			"How does your product integrate with the tools your customers already use?",
			"What would it take to get your first 10 enterprise logos?",
		},
	},
	{
		Industry: "E-commerce / Marketplace",
		Keywords: []string{"ecommerce", "e-commerce", "marketplace", "shop", "store", "retail", "buy", "sell", "merchant"},
		Questions: []string{
			"What's your take rate or commission structure?",
			"How do you solve the chicken-and-egg problem, supply first or demand first?",
			"What's your average order value and repeat purchase rate?",
			"How do you handle logistics, returns, or disputes?",
			"Who are the 3 closest competitors and why would a seller/buyer switch to you?",
		},
	},
	{
		Industry: "FinTech / Payments",
		Keywords: []string{"fintech", "finance", "banking", "payment", "lending", "insurance", "credit", "invest", "wallet", "money"},
		Questions: []string{
			"What regulatory licenses or compliance do you need (e.g., money transmitter, PCI)?",
			"How do you handle fraud prevention and risk management?",
			"What's your revenue model: interchange, subscription, spread, or fee-per-transaction?",
			"Who is your banking partner or BaaS provider?",
			"What's your customer acquisition cost relative to lifetime value?",
		},
	},
	{
		Industry: "HealthTech / MedTech",
		Keywords: []string{"health", "medical", "healthcare", "clinic", "patient", "doctor", "hospital", "pharma", "biotech", "telehealth", "dental", "therapy"},
		Questions: []string{
			"Do you need FDA clearance or other regulatory approval? What's your timeline?",
			"Who pays: the patient, the provider, the payer (insurance), or the employer?",
			"How do you handle HIPAA compliance and patient data security?",
			"What's the clinical evidence or validation behind your approach?",
			"How long is the typical sales cycle in your target health system?",
			"What's the reimbursement pathway? Is there a billing code for your service?",
		},
	},
	{
		Industry: "EdTech",
		Keywords: []string{"education", "edtech", "learning", "school", "university", "student", "teacher", "course", "training", "tutor"},
		Questions: []string{
			"Who is the buyer: the institution, the teacher, the student, or the parent?",
			"How do you measure learning outcomes or engagement?",
			"What's your pricing model: per-seat, per-institution, or freemium?",
			"How does your solution fit into existing LMS or curriculum workflows?",
			"What's your evidence of improved outcomes vs. traditional methods?",
		},
	},
	{
		Industry: "AI / ML Tools",
		Keywords: []string{"ai", "artificial intelligence", "machine learning", "ml", "llm", "gpt", "model", "neural", "deep learning", "nlp", "computer vision"},
		Questions: []string{
			"What's your model: fine-tuned open-source, proprietary, or API wrapper?",
			"What's your defensibility beyond the model itself (data moat, workflow, distribution)?",
			"How do you handle accuracy, hallucinations, or edge cases?",
			"What's your compute cost per query and how does it scale?",
			"How do you evaluate quality? What benchmarks or metrics matter to your customers?",
		},
	},
	{
		Industry: "Food / Restaurant",
		Keywords: []string{"food", "restaurant", "dining", "delivery", "kitchen", "menu", "chef", "catering", "cafe", "bar"},
		Questions: []string{
			"Independent restaurants, chains, or fast-food: which segment and what size?",
			"What's the average revenue per location and your price point relative to that?",
			"How do you integrate with existing POS systems (Toast, Square, Clover)?",
			"What's the no-show rate or food waste cost you're targeting?",
			"How many restaurants have you talked to and what was their reaction?",
		},
	},
	{
		Industry: "Real Estate / PropTech",
		Keywords: []string{"real estate", "property", "proptech", "rent", "lease", "landlord", "tenant", "housing", "mortgage", "broker"},
		Questions: []string{
			"Are you targeting residential or commercial? Buyers, sellers, or property managers?",
			"What's your revenue model: per-listing fee, subscription, or transaction commission?",
			"How do you source property data and how fresh is it?",
			"What's the regulatory environment in your target market?",
			"How does your solution reduce time-to-close or vacancy rates?",
		},
	},
}

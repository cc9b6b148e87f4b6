package triage

// Severity is the urgency tier of a triage result
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Urgent reports whether the tier requires immediate attention.
func (s Severity) Urgent() bool {
	switch s {
	case SeverityCritical, SeverityHigh:
		return true
	case SeverityMedium, SeverityLow:
		return false
	default:
		return false
	}
}

// Rule maps a keyword set to a severity. Lower Priority is more urgent.
type Rule struct {
	Name                string
	Keywords            []string
	Severity            Severity
	Priority            int
	Message             string
	SuggestedDepartment string
}

const (
	deptEmergency  = "Emergency"
	deptGeneral    = "General Medicine"
	deptCardiology = "Cardiology"
	deptOrtho      = "Orthopedics"
	deptNeuro      = "Neurology"
	deptObstetrics = "Obstetrics"
	deptGastro     = "Gastroenterology"
	deptDerm       = "Dermatology"
	deptDental     = "Dental"
)

// DefaultRules returns the built-in rule table in declaration order.
// Keywords are lowercase; input is lowercased before matching.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:                "cardiac-respiratory-arrest",
			Keywords:            []string{"not breathing", "stopped breathing", "no pulse", "cardiac arrest", "unconscious", "unresponsive"},
			Severity:            SeverityCritical,
			Priority:            1,
			Message:             "Call emergency services immediately and start CPR if trained. Do not wait in the queue.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "severe-bleeding",
			Keywords:            []string{"severe bleeding", "heavy bleeding", "bleeding heavily", "bleeding won't stop", "vomiting blood"},
			Severity:            SeverityCritical,
			Priority:            2,
			Message:             "Apply firm pressure to the wound and go to the emergency department now.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "stroke",
			Keywords:            []string{"stroke", "face drooping", "slurred speech", "sudden numbness", "paralysis"},
			Severity:            SeverityCritical,
			Priority:            3,
			Message:             "Possible stroke. Note the time symptoms started and go to the emergency department immediately.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "anaphylaxis",
			Keywords:            []string{"anaphylaxis", "throat swelling", "throat closing", "severe allergic"},
			Severity:            SeverityCritical,
			Priority:            4,
			Message:             "Use an epinephrine auto-injector if available and seek emergency care immediately.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "seizure",
			Keywords:            []string{"seizure", "convulsion"},
			Severity:            SeverityCritical,
			Priority:            5,
			Message:             "Keep the patient safe from injury, do not restrain, and seek emergency care.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "self-harm-poisoning",
			Keywords:            []string{"suicidal", "suicide", "overdose", "poisoning", "poisoned"},
			Severity:            SeverityCritical,
			Priority:            6,
			Message:             "Go to the emergency department now or call emergency services. Do not stay alone.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "chest-pain",
			Keywords:            []string{"chest pain", "chest tightness", "heart attack", "crushing pain"},
			Severity:            SeverityHigh,
			Priority:            10,
			Message:             "Chest pain needs urgent assessment. Please report to the emergency desk right away.",
			SuggestedDepartment: deptCardiology,
		},
		{
			Name:                "breathing-difficulty",
			Keywords:            []string{"difficulty breathing", "shortness of breath", "can't breathe", "cannot breathe", "wheezing"},
			Severity:            SeverityHigh,
			Priority:            11,
			Message:             "Breathing difficulty needs urgent assessment. Please report to the emergency desk.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "head-injury",
			Keywords:            []string{"head injury", "hit my head", "head trauma", "concussion"},
			Severity:            SeverityHigh,
			Priority:            12,
			Message:             "Head injuries should be checked promptly. Report to the emergency desk.",
			SuggestedDepartment: deptEmergency,
		},
		{
			Name:                "obstetric",
			Keywords:            []string{"water broke", "labor pain", "contractions", "pregnant and bleeding"},
			Severity:            SeverityHigh,
			Priority:            13,
			Message:             "Please go directly to the maternity ward for urgent assessment.",
			SuggestedDepartment: deptObstetrics,
		},
		{
			Name:                "high-fever",
			Keywords:            []string{"high fever", "stiff neck"},
			Severity:            SeverityHigh,
			Priority:            14,
			Message:             "High fever needs prompt review. Inform the triage nurse on arrival.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "fracture",
			Keywords:            []string{"broken bone", "fracture", "dislocated"},
			Severity:            SeverityHigh,
			Priority:            15,
			Message:             "Keep the limb still and seek care promptly.",
			SuggestedDepartment: deptOrtho,
		},
		{
			Name:                "abdominal",
			Keywords:            []string{"abdominal pain", "stomach pain", "persistent vomiting", "diarrhea"},
			Severity:            SeverityMedium,
			Priority:            20,
			Message:             "Book a token and stay hydrated. Return urgently if pain becomes severe.",
			SuggestedDepartment: deptGastro,
		},
		{
			Name:                "fever",
			Keywords:            []string{"fever", "chills"},
			Severity:            SeverityMedium,
			Priority:            21,
			Message:             "Book a token with General Medicine and monitor your temperature.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "infection",
			Keywords:            []string{"infection", "burning urination", "pus"},
			Severity:            SeverityMedium,
			Priority:            22,
			Message:             "Book a token with General Medicine for assessment.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "musculoskeletal",
			Keywords:            []string{"back pain", "joint pain", "sprain"},
			Severity:            SeverityMedium,
			Priority:            23,
			Message:             "Book a token with Orthopedics. Rest and avoid strain meanwhile.",
			SuggestedDepartment: deptOrtho,
		},
		{
			Name:                "neurological",
			Keywords:            []string{"migraine", "blurred vision", "dizziness"},
			Severity:            SeverityMedium,
			Priority:            24,
			Message:             "Book a token with Neurology for assessment.",
			SuggestedDepartment: deptNeuro,
		},
		{
			Name:                "headache",
			Keywords:            []string{"headache"},
			Severity:            SeverityLow,
			Priority:            30,
			Message:             "Book a regular token. Rest, hydrate, and take standard pain relief if suitable.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "respiratory-minor",
			Keywords:            []string{"cough", "sore throat", "runny nose", "sneezing", "common cold"},
			Severity:            SeverityLow,
			Priority:            31,
			Message:             "Book a regular token with General Medicine.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "skin",
			Keywords:            []string{"rash", "itching", "acne"},
			Severity:            SeverityLow,
			Priority:            32,
			Message:             "Book a regular token with Dermatology.",
			SuggestedDepartment: deptDerm,
		},
		{
			Name:                "minor-injury",
			Keywords:            []string{"minor cut", "bruise", "scrape"},
			Severity:            SeverityLow,
			Priority:            33,
			Message:             "Clean the area and book a regular token if needed.",
			SuggestedDepartment: deptGeneral,
		},
		{
			Name:                "dental",
			Keywords:            []string{"toothache", "gum pain"},
			Severity:            SeverityLow,
			Priority:            34,
			Message:             "Book a regular token with Dental.",
			SuggestedDepartment: deptDental,
		},
	}
}

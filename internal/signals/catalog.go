package signals

type reference struct {
	statutes  []string
	claimType string
	nextSteps []string
}

var catalog = map[Kind]reference{
	ExcludedProvider: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(A)", "42 U.S.C. § 1320a-7"},
		claimType: "Presenting false claims: an excluded provider cannot legally bill federal healthcare programs",
		nextSteps: []string{
			"Verify exclusion status on the OIG LEIE website and confirm the NPI match",
			"Request payment records from the state Medicaid agency for the post-exclusion period",
			"Initiate recovery action for all payments made after the exclusion date",
			"Refer to OIG for potential criminal prosecution under 42 U.S.C. § 1320a-7b",
		},
	},
	BillingOutlier: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(A)"},
		claimType: "Potential overbilling: billing far exceeds peer group norms, suggesting inflated or fabricated claims",
		nextSteps: []string{
			"Request detailed claims data and supporting documentation from the provider",
			"Compare service patterns against peer group norms for the same taxonomy and state",
			"Conduct a desk audit of the highest-volume service codes",
			"Consider an on-site audit if billing exceeds 5x the peer median",
		},
	},
	RapidEscalation: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(A)"},
		claimType: "Potential bust-out scheme: a new entity with explosive billing growth consistent with a fraud-and-flee pattern",
		nextSteps: []string{
			"Review the provider enrollment application and supporting documentation",
			"Analyze the service code distribution for patterns consistent with upcoding",
			"Interview beneficiaries to verify services were rendered",
			"Place the provider on prepayment review if growth exceeds 500%",
		},
	},
	WorkforceImpossibility: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(B)"},
		claimType: "False records: billing volume is physically impossible for the reported workforce, implying fabricated claims",
		nextSteps: []string{
			"Request organizational staffing records and provider schedules",
			"Cross-reference NPI sub-parts and rendering providers",
			"Analyze time-of-day claim patterns for statistical impossibilities",
			"Conduct an unannounced site visit to verify staffing levels",
		},
	},
	SharedOfficial: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(C)"},
		claimType: "Conspiracy: coordinated billing through multiple entities controlled by the same individual suggests a shell company network",
		nextSteps: []string{
			"Map all NPIs controlled by the authorized official and their corporate relationships",
			"Analyze billing patterns across all controlled entities for coordination",
			"Review state corporate filings for common ownership structures",
			"Investigate potential kickback or self-referral arrangements",
		},
	},
	GeographicImplausibility: {
		statutes:  []string{"31 U.S.C. § 3729(a)(1)(G)"},
		claimType: "Reverse false claims: repeated billing on the same patients with implausible service patterns",
		nextSteps: []string{
			"Map beneficiary addresses against the provider service area",
			"Review travel logs and service delivery documentation",
			"Interview a sample of beneficiaries to verify services received",
			"Analyze electronic visit verification GPS data if available",
		},
	},
}

// StatuteReferences returns the statutes the signal may implicate.
func (k Kind) StatuteReferences() []string {
	return append([]string(nil), catalog[k].statutes...)
}

// FCAClaimType describes the False Claims Act theory behind the signal.
func (k Kind) FCAClaimType() string { return catalog[k].claimType }

// NextSteps returns suggested investigative follow-ups.
func (k Kind) NextSteps() []string {
	return append([]string(nil), catalog[k].nextSteps...)
}

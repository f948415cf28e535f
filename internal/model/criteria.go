package model

// FixedCriteria is the immutable set of six risk dimensions scored for every
// event and every window. IDs are stable slugs; callers should not assume an
// ordering beyond what is listed here.
var FixedCriteria = []Criterion{
	{ID: "it_security", Slug: "it_security", Name: "IT Security"},
	{ID: "performance_degradation", Slug: "performance_degradation", Name: "Performance Degradation"},
	{ID: "failure_prediction", Slug: "failure_prediction", Name: "Failure Prediction"},
	{ID: "anomaly", Slug: "anomaly", Name: "Anomaly"},
	{ID: "compliance_audit", Slug: "compliance_audit", Name: "Compliance / Audit"},
	{ID: "operational_risk", Slug: "operational_risk", Name: "Operational Risk"},
}

// CriterionSlugs returns just the slugs, in FixedCriteria order.
func CriterionSlugs() []string {
	out := make([]string, len(FixedCriteria))
	for i, c := range FixedCriteria {
		out[i] = c.Slug
	}
	return out
}

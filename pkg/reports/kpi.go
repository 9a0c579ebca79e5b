package reports

// KPISnapshot is the advanced-analytics payload served to entitled tenants.
type KPISnapshot struct {
	MRR              int     `json:"mrr"`
	ChurnRate        float64 `json:"churn_rate"`
	ExpansionRevenue int     `json:"expansion_revenue"`
}

// KPIsFor returns the advanced-analytics snapshot for an organization.
// Every tenant currently sees the same representative numbers; nothing
// here is derived from live billing data.
func KPIsFor(slug string) KPISnapshot {
	return KPISnapshot{
		MRR:              12800,
		ChurnRate:        0.032,
		ExpansionRevenue: 1900,
	}
}

package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	MPurchaseOutcomes      MetricKey = "purchase_outcomes_total"
	MPaymentAuthorizations MetricKey = "payment_authorizations_total"
	MLedgerRefunds         MetricKey = "ledger_refunds_total"
	MAssetMaterializations MetricKey = "asset_materializations_total"
)

// MetricSpec describes how a MetricKey is registered with a backend.
type MetricSpec struct {
	Key    MetricKey
	Help   string
	Labels []string
}

var CounterSpecs = []MetricSpec{
	{MUsecaseRequests, "Total number of use case invocations.", []string{"use_case", "outcome"}},
	{MHTTPRequests, "Total number of HTTP requests.", []string{"method", "route", "status"}},
	{MExternalRequests, "Calls to external collaborators.", []string{"peer", "endpoint", "outcome"}},
	{MPurchaseOutcomes, "Terminal purchase transactions by result and reason.", []string{"result", "reason"}},
	{MPaymentAuthorizations, "Payment authorizations by status.", []string{"status", "reason"}},
	{MLedgerRefunds, "Compensating refunds applied after a failed commit.", []string{"reason"}},
	{MAssetMaterializations, "Asset placements requested from the presentation layer.", []string{"kind", "outcome"}},
}

var HistogramSpecs = []MetricSpec{
	{MUsecaseDuration, "Duration of use case execution in seconds.", []string{"use_case"}},
	{MHTTPRequestDuration, "Duration of HTTP requests in seconds.", []string{"method", "route", "status"}},
	{MExternalRequestDuration, "Duration of external calls in seconds.", []string{"peer", "endpoint"}},
}

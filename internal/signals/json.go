package signals

import (
	"encoding/json"
	"fmt"
)

// flagJSON is the wire form of a Flag inside a provider record. The NPI is
// carried by the enclosing record.
type flagJSON struct {
	Kind                    Kind            `json:"signal_type"`
	Severity                Severity        `json:"severity"`
	Evidence                json.RawMessage `json:"evidence"`
	EstimatedOverpaymentUSD float64         `json:"estimated_overpayment_usd"`
	StatuteReferences       []string        `json:"statute_references"`
	FCAClaimType            string          `json:"fca_claim_type"`
	SuggestedNextSteps      []string        `json:"suggested_next_steps"`
}

func (f Flag) MarshalJSON() ([]byte, error) {
	evidence, err := json.Marshal(f.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s evidence: %w", f.Kind, err)
	}
	return json.Marshal(flagJSON{
		Kind:                    f.Kind,
		Severity:                f.Severity,
		Evidence:                evidence,
		EstimatedOverpaymentUSD: f.EstimatedOverpaymentUSD,
		StatuteReferences:       f.Kind.StatuteReferences(),
		FCAClaimType:            f.Kind.FCAClaimType(),
		SuggestedNextSteps:      f.Kind.NextSteps(),
	})
}

// UnmarshalJSON decodes the evidence into the Detail type for the flag's
// signal. NPI is left empty.
func (f *Flag) UnmarshalJSON(b []byte) error {
	var raw flagJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	detail, err := decodeDetail(raw.Kind, raw.Evidence)
	if err != nil {
		return err
	}
	*f = Flag{
		Kind:                    raw.Kind,
		Severity:                raw.Severity,
		EstimatedOverpaymentUSD: raw.EstimatedOverpaymentUSD,
		Detail:                  detail,
	}
	return nil
}

func decodeDetail(kind Kind, raw json.RawMessage) (Detail, error) {
	var (
		d   Detail
		err error
	)
	switch kind {
	case ExcludedProvider:
		d, err = decodeInto[ExcludedDetail](raw)
	case BillingOutlier:
		d, err = decodeInto[OutlierDetail](raw)
	case RapidEscalation:
		d, err = decodeInto[EscalationDetail](raw)
	case WorkforceImpossibility:
		d, err = decodeInto[WorkforceDetail](raw)
	case SharedOfficial:
		d, err = decodeInto[SharedOfficialDetail](raw)
	case GeographicImplausibility:
		d, err = decodeInto[GeographicDetail](raw)
	default:
		return nil, fmt.Errorf("unknown signal type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s evidence: %w", kind, err)
	}
	return d, nil
}

func decodeInto[D Detail](raw json.RawMessage) (Detail, error) {
	var d D
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

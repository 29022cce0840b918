package mbox

// TransformResult is the output of applying business rules to a
// parsed label record, mirroring MboxTransformResult.
type TransformResult struct {
	Variables  map[string]any
	OnError    bool
	ErrorInfo  string
	AdjRWeight float64
}

// Transformer holds the rolling state needed to detect duplicate
// readings across successive frames. Mirrors MboxTransformer.
type Transformer struct {
	config           Config
	lastAdjRWeight   *float64
}

// NewTransformer creates a Transformer for the given device config.
func NewTransformer(config Config) *Transformer {
	return &Transformer{config: config}
}

// ResetState clears the duplicate-detection memory. Not currently
// invoked anywhere in the worker loop, matching the original's
// reset_state, which is likewise unreferenced in worker.py.
func (t *Transformer) ResetState() {
	t.lastAdjRWeight = nil
}

// Transform applies tare subtraction, zero-as-error, and
// duplicate-as-error rules to a parsed record.
//
// Note: "lot" in the returned variables is always the empty string,
// never config.Lot — this asymmetry versus insertMissPack (which does
// use config.Lot) is preserved verbatim from the original
// transform.py / worker.py pair; see DESIGN.md Open Question #2.
func (t *Transformer) Transform(mboxID int, rec LabelRecord) TransformResult {
	cfg := t.config

	adjR := rec.RWeight - cfg.Tare
	if adjR < 0 {
		adjR = 0.0
	}

	onError := false
	errorInfo := ""

	if cfg.TreatZeroAsError && adjR == 0.0 {
		adjR = rec.NWeight
		onError = true
		errorInfo = cfg.ErrorLabelZero
	} else if cfg.TreatDuplicateAsError && t.lastAdjRWeight != nil && adjR == *t.lastAdjRWeight {
		onError = true
		errorInfo = cfg.ErrorLabelDuplicate
	}

	t.lastAdjRWeight = &adjR

	variables := map[string]any{
		"mbox_id":    mboxID,
		"on_error":   onError,
		"created_at": rec.DT,
		"fish_name":  rec.FishType,
		"fish_grade": rec.Size,
		"lot":        "",
		"n_weight":   rec.NWeight,
		"r_weight":   adjR,
		"sn":         rec.SNumber,
		"error_info": errorInfo,
		"tare":       cfg.Tare,
	}

	return TransformResult{
		Variables:  variables,
		OnError:    onError,
		ErrorInfo:  errorInfo,
		AdjRWeight: adjR,
	}
}

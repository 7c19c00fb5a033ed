package httpclassifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// Key sets per attribute. Clean keys carry a bare value; noisy keys come in
// <name>_val / <name>_score pairs.
var (
	categoryKeys = []string{"kind", "category"}
	docIDKeys    = []string{"doc_id"}
	subjectKeys  = []string{"doc_subject", "subject"}
	docDateKeys  = []string{"doc_date_parsed", "doc_date"}

	noisyCategory = []string{"kind", "category"}
	noisyDocID    = []string{"doc_id"}
	noisySubject  = []string{"doc_subject"}
	noisyDocDate  = []string{"doc_date_sic", "doc_date_parsed", "doc_date"}
)

// DecodeResponse turns either payload layout into a tagged ClassifierResponse.
// A payload with any *_val or *_score key is treated as noisy. Only bodies
// that are not a JSON object fail with a DecodeError.
func DecodeResponse(raw []byte) (domain.ClassifierResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.ClassifierResponse{}, &DecodeError{Err: errors.New("empty body")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.ClassifierResponse{}, &DecodeError{Err: err}
	}

	// Some deployments wrap the payload in {"result": {...}}.
	if inner, ok := fields["result"]; ok && len(fields) == 1 {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			fields = nested
		}
	}

	resp := domain.ClassifierResponse{Shape: domain.ShapeClean}
	if isNoisy(fields) {
		resp.Shape = domain.ShapeNoisy
		resp.Category = noisyField(fields, noisyCategory)
		resp.DocID = noisyField(fields, noisyDocID)
		resp.Subject = noisyField(fields, noisySubject)
		resp.DocDate = noisyField(fields, noisyDocDate)
	}

	// Clean keys also fill gaps left by a noisy payload.
	fillValue(&resp.Category, fields, categoryKeys)
	fillValue(&resp.DocID, fields, docIDKeys)
	fillValue(&resp.Subject, fields, subjectKeys)
	fillValue(&resp.DocDate, fields, docDateKeys)

	if conf, ok := numberField(fields["confidence"]); ok {
		resp.Confidence = &conf
	}

	// An object without known keys is still an answer: every field stays nil
	// and normalization falls back to the default confidence.
	return resp, nil
}

func isNoisy(fields map[string]json.RawMessage) bool {
	for key := range fields {
		if strings.HasSuffix(key, "_val") || strings.HasSuffix(key, "_score") {
			return true
		}
	}
	return false
}

func noisyField(fields map[string]json.RawMessage, names []string) domain.ClassifierField {
	var out domain.ClassifierField
	for _, name := range names {
		if out.Value == nil {
			if v, ok := stringField(fields[name+"_val"]); ok {
				out.Value = &v
			}
		}
		if out.Score == nil {
			if s, ok := numberField(fields[name+"_score"]); ok {
				out.Score = &s
			}
		}
	}
	return out
}

func fillValue(field *domain.ClassifierField, fields map[string]json.RawMessage, keys []string) {
	if field.Value != nil {
		return
	}
	for _, key := range keys {
		if v, ok := stringField(fields[key]); ok {
			field.Value = &v
			return
		}
	}
}

func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// numberField accepts JSON numbers and numeric strings ("0.87").
func numberField(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

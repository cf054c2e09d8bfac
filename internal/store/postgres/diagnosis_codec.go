/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package postgres

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/triagectl/errwatch/pkg/core/model"
)

// encodeDiagnosis renders d as a JSONB payload using jx's low-allocation
// writer. Returns nil for a nil diagnosis, matching spec.md §4.2's
// "optional, self-describing nested structure" rule: an absent Diagnosis
// is stored as SQL NULL, never as an empty JSON object.
func encodeDiagnosis(d *model.Diagnosis) []byte {
	if d == nil {
		return nil
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("rootCause")
	e.Str(d.RootCause)
	e.FieldStart("suggestedFix")
	e.Str(d.SuggestedFix)
	e.FieldStart("evidence")
	e.ArrStart()
	for _, ev := range d.Evidence {
		e.Str(ev)
	}
	e.ArrEnd()
	e.FieldStart("confidence")
	e.Str(string(d.Confidence))
	e.FieldStart("diagnosedAt")
	e.Str(d.DiagnosedAt.Format(time.RFC3339Nano))
	e.FieldStart("model")
	e.Str(d.Model)
	e.FieldStart("costUsd")
	e.Float64(d.CostUsd)
	e.ObjEnd()

	buf := make([]byte, len(e.Bytes()))
	copy(buf, e.Bytes())
	return buf
}

// decodeDiagnosis parses a JSONB payload produced by encodeDiagnosis. Per
// spec.md §4.2's degrade-to-absent rule, a malformed payload yields nil
// rather than propagating a parse error — a corrupt optional field
// must not block reconstructing the rest of the Signature.
func decodeDiagnosis(raw []byte) *model.Diagnosis {
	if len(raw) == 0 {
		return nil
	}

	var diagnosedAt string

	d := model.Diagnosis{}
	ok := true
	err := jx.DecodeBytes(raw).Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "rootCause":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			d.RootCause = v
		case "suggestedFix":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			d.SuggestedFix = v
		case "evidence":
			return dec.Arr(func(dec *jx.Decoder) error {
				v, err := dec.Str()
				if err != nil {
					return err
				}
				d.Evidence = append(d.Evidence, v)
				return nil
			})
		case "confidence":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			d.Confidence = model.Confidence(v)
		case "diagnosedAt":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			diagnosedAt = v
		case "model":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			d.Model = v
		case "costUsd":
			v, err := dec.Float64()
			if err != nil {
				return err
			}
			d.CostUsd = v
		default:
			return dec.Skip()
		}
		return nil
	})
	if err != nil {
		return nil
	}
	if diagnosedAt != "" {
		if t, perr := time.Parse(time.RFC3339Nano, diagnosedAt); perr == nil {
			d.DiagnosedAt = t
		} else {
			ok = false
		}
	}
	if !ok {
		return nil
	}
	return &d
}

package item

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/schema"
	"github.com/koustreak/relicmart/internal/validate"
)

type fieldKind int

const (
	kindText           fieldKind = iota // NOT NULL string, never empty
	kindOptionalText                    // string or null
	kindAmount                          // NOT NULL number, never negative
	kindOptionalAmount                  // number or null, never negative
)

type fieldSpec struct {
	key    string
	column string
	kind   fieldKind
}

// writable is the closed set of keys a client may send, in column order.
// Nothing outside it ever reaches a SQL string.
var writable = []fieldSpec{
	{"type", schema.ColType, kindText},
	{"name", schema.ColName, kindText},
	{"price", schema.ColPrice, kindAmount},
	{"baseItem", schema.ColBaseItem, kindText},
	{"rarity", schema.ColRarity, kindText},
	{"attunement", schema.ColAttunement, kindOptionalText},
	{"requirements", schema.ColRequirements, kindOptionalText},
	{"weight", schema.ColWeight, kindOptionalAmount},
	{"source", schema.ColSource, kindText},
	{"image", schema.ColImage, kindOptionalText},
	{"link", schema.ColLink, kindOptionalText},
}

var serverOwned = map[string]bool{"id": true, "createdAt": true, "updatedAt": true}

var writableByKey = func() map[string]fieldSpec {
	m := make(map[string]fieldSpec, len(writable))
	for _, f := range writable {
		m[f.key] = f
	}
	return m
}()

// Column returns the storage column for a JSON key, if the key is writable.
func Column(key string) (string, bool) {
	f, ok := writableByKey[key]
	return f.column, ok
}

// Fields is a partial item: only the keys the client actually sent.
type Fields map[string]json.RawMessage

// DecodeFields parses a JSON object body. Keys outside the writable set,
// including the server-owned id and timestamps, are rejected here so no
// caller ever sees them.
func DecodeFields(body []byte) (Fields, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, errs.New(errs.ErrKindValidation, "request body must be a JSON object")
	}
	var f Fields
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, errs.Wrap(errs.ErrKindValidation, "malformed JSON body", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f Fields) check() error {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if serverOwned[k] {
			return errs.Newf(errs.ErrKindValidation, "field %q is managed by the server", k)
		}
		if _, ok := writableByKey[k]; !ok {
			return errs.Newf(errs.ErrKindValidation, "unknown field %q", k)
		}
	}
	return nil
}

// assignment is one column = value pair, value already typed.
type assignment struct {
	key    string
	column string
	value  any
}

// assignments type-checks every present key and returns the pairs in
// column order.
func (f Fields) assignments() ([]assignment, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []assignment
	var problems []string
	for _, spec := range writable {
		raw, ok := f[spec.key]
		if !ok {
			continue
		}
		v, err := decodeValue(spec, raw)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out = append(out, assignment{key: spec.key, column: spec.column, value: v})
	}
	if len(problems) > 0 {
		return nil, errs.New(errs.ErrKindValidation, strings.Join(problems, "; "))
	}
	return out, nil
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

func decodeValue(spec fieldSpec, raw json.RawMessage) (any, error) {
	isNull := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

	switch spec.kind {
	case kindText, kindOptionalText:
		if isNull {
			if spec.kind == kindText {
				return nil, fieldError(spec.key + " cannot be null")
			}
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fieldError(spec.key + " must be a string")
		}
		if spec.kind == kindText && strings.TrimSpace(s) == "" {
			return nil, fieldError(spec.key + " must not be empty")
		}
		return s, nil

	default:
		if isNull {
			if spec.kind == kindAmount {
				return nil, fieldError(spec.key + " cannot be null")
			}
			return nil, nil
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fieldError(spec.key + " must be a number")
		}
		if n < 0 {
			return nil, fieldError(spec.key + " must not be negative")
		}
		return n, nil
	}
}

// draft carries the columns every new item needs; validated before insert.
type draft struct {
	Type     string   `json:"type" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	BaseItem string   `json:"baseItem" validate:"required"`
	Rarity   string   `json:"rarity" validate:"required"`
	Source   string   `json:"source" validate:"required"`
	Weight   *float64 `json:"weight" validate:"omitempty,gte=0"`
}

func checkRequired(as []assignment) error {
	var d draft
	for _, a := range as {
		switch a.key {
		case "type":
			d.Type = a.value.(string)
		case "name":
			d.Name = a.value.(string)
		case "price":
			p := a.value.(float64)
			d.Price = &p
		case "baseItem":
			d.BaseItem = a.value.(string)
		case "rarity":
			d.Rarity = a.value.(string)
		case "source":
			d.Source = a.value.(string)
		case "weight":
			if w, ok := a.value.(float64); ok {
				d.Weight = &w
			}
		}
	}
	return validate.Struct(d)
}

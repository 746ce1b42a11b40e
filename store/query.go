package store

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matchDocument reports whether doc satisfies filter. Supported: field
// equality (array fields match on membership), dotted paths into embedded
// documents and arrays, and the $in, $nin, $ne and $exists operators.
func matchDocument(doc, filter bson.M) (bool, error) {
	for key, cond := range filter {
		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("unsupported top-level operator %s", key)
		}
		values := lookup(doc, strings.Split(key, "."))
		ok, err := matchCondition(values, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func lookup(v interface{}, path []string) []interface{} {
	if len(path) == 0 {
		return []interface{}{v}
	}
	if d, ok := asDoc(v); ok {
		next, ok := d[path[0]]
		if !ok {
			return nil
		}
		return lookup(next, path[1:])
	}
	if arr, ok := asArray(v); ok {
		var out []interface{}
		for _, el := range arr {
			out = append(out, lookup(el, path)...)
		}
		return out
	}
	return nil
}

func matchCondition(values []interface{}, cond interface{}) (bool, error) {
	d, ok := asDoc(cond)
	if !ok || !isOperatorDoc(d) {
		return matchEquals(values, cond), nil
	}
	for op, arg := range d {
		var ok bool
		switch op {
		case "$in", "$nin":
			list, isArr := asArray(arg)
			if !isArr {
				return false, fmt.Errorf("%s needs an array", op)
			}
			ok = matchIn(values, list)
			if op == "$nin" {
				ok = !ok
			}
		case "$ne":
			ok = !matchEquals(values, arg)
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("$exists needs a boolean")
			}
			ok = (len(values) > 0) == want
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// candidates expands array values so that equality also matches members.
func candidates(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if arr, ok := asArray(v); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func matchEquals(values []interface{}, want interface{}) bool {
	if want == nil && len(values) == 0 {
		return true
	}
	for _, v := range candidates(values) {
		if valuesEqual(v, want) {
			return true
		}
	}
	return false
}

func matchIn(values []interface{}, list []interface{}) bool {
	for _, want := range list {
		if matchEquals(values, want) {
			return true
		}
	}
	return false
}

// applyUpdate mutates doc in place. Supported: $set, $unset, $push,
// $addToSet (both accept $each) and $pull.
func applyUpdate(doc, update bson.M) error {
	for op, arg := range update {
		fields, ok := asDoc(arg)
		if !ok {
			return fmt.Errorf("%s needs a document", op)
		}
		for field, v := range fields {
			if strings.Contains(field, ".") {
				return fmt.Errorf("%s on dotted path %s is not supported", op, field)
			}
			switch op {
			case "$set":
				doc[field] = v
			case "$unset":
				delete(doc, field)
			case "$push", "$addToSet":
				next, err := appendValues(doc[field], v, op == "$addToSet")
				if err != nil {
					return fmt.Errorf("%s %s: %w", op, field, err)
				}
				doc[field] = next
			case "$pull":
				next, err := pullValues(doc[field], v)
				if err != nil {
					return fmt.Errorf("$pull %s: %w", field, err)
				}
				if next != nil {
					doc[field] = next
				}
			default:
				return fmt.Errorf("unsupported update operator %s", op)
			}
		}
	}
	return nil
}

func appendValues(current, v interface{}, unique bool) (primitive.A, error) {
	existing, ok := asArray(current)
	if current != nil && !ok {
		return nil, fmt.Errorf("field is not an array")
	}
	items := []interface{}{v}
	if d, ok := asDoc(v); ok {
		if each, ok := d["$each"]; ok {
			if items, ok = asArray(each); !ok {
				return nil, fmt.Errorf("$each needs an array")
			}
		}
	}

	out := make(primitive.A, 0, len(existing)+len(items))
	out = append(out, existing...)
	for _, item := range items {
		if unique && containsValue(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func pullValues(current, cond interface{}) (primitive.A, error) {
	if current == nil {
		return nil, nil
	}
	existing, ok := asArray(current)
	if !ok {
		return nil, fmt.Errorf("field is not an array")
	}

	out := make(primitive.A, 0, len(existing))
	for _, el := range existing {
		matched, err := pullMatches(el, cond)
		if err != nil {
			return nil, err
		}
		if !matched {
			out = append(out, el)
		}
	}
	return out, nil
}

func pullMatches(el, cond interface{}) (bool, error) {
	d, ok := asDoc(cond)
	if !ok {
		return valuesEqual(el, cond), nil
	}
	if isOperatorDoc(d) {
		return matchCondition([]interface{}{el}, d)
	}
	sub, ok := asDoc(el)
	if !ok {
		return false, nil
	}
	return matchDocument(sub, d)
}

func containsValue(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

func isOperatorDoc(d bson.M) bool {
	if len(d) == 0 {
		return false
	}
	for k := range d {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func asDoc(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	case primitive.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case primitive.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	if ad, ok := asDoc(a); ok {
		bd, ok := asDoc(b)
		if !ok || len(ad) != len(bd) {
			return false
		}
		for k, av := range ad {
			bv, ok := bd[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	if aa, ok := asArray(a); ok {
		ba, ok := asArray(b)
		if !ok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !valuesEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders missing and null values first. Values of different
// kinds compare equal.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return compareOrdered(an, bn)
		}
		return 0
	}
	switch av := a.(type) {
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex())
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case primitive.DateTime:
		if bv, ok := b.(primitive.DateTime); ok {
			return compareOrdered(av, bv)
		}
	}
	return 0
}

func compareOrdered[T ~int64 | ~float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

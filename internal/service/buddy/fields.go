package buddy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/oggyb/mood-buddy/internal/errors"
)

// Requests and responses travel as google.protobuf.Struct. These helpers
// read typed fields out of a request and turn bad input into InvalidArgument.

func field(req *structpb.Struct, name string) (*structpb.Value, bool) {
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func requiredString(req *structpb.Struct, name string) (string, error) {
	v, ok := field(req, name)
	if !ok {
		return "", svcErr.InvalidArgument(name + " is required")
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || strings.TrimSpace(s.StringValue) == "" {
		return "", svcErr.InvalidArgument(name + " must be a non-empty string")
	}
	return s.StringValue, nil
}

func optionalString(req *structpb.Struct, name string) (*string, error) {
	v, ok := field(req, name)
	if !ok {
		return nil, nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, svcErr.InvalidArgument(name + " must be a string")
	}
	return &s.StringValue, nil
}

func requiredBool(req *structpb.Struct, name string) (bool, error) {
	v, ok := field(req, name)
	if !ok {
		return false, svcErr.InvalidArgument(name + " is required")
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, svcErr.InvalidArgument(name + " must be a boolean")
	}
	return b.BoolValue, nil
}

// toUint accepts ids as decimal strings or whole JSON numbers.
func toUint(v *structpb.Value, name string) (uint64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		id, err := strconv.ParseUint(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, svcErr.InvalidArgument(name + " must be a valid uint64")
		}
		return id, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, svcErr.InvalidArgument(name + " must be a valid uint64")
		}
		return uint64(n), nil
	default:
		return 0, svcErr.InvalidArgument(name + " must be a valid uint64")
	}
}

func requiredID(req *structpb.Struct, name string) (uint64, error) {
	v, ok := field(req, name)
	if !ok {
		return 0, svcErr.InvalidArgument(name + " is required")
	}
	return toUint(v, name)
}

func idList(req *structpb.Struct, name string) ([]uint64, error) {
	v, ok := field(req, name)
	if !ok {
		return nil, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, svcErr.InvalidArgument(name + " must be a list")
	}
	out := make([]uint64, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		id, err := toUint(item, fmt.Sprintf("%s[%d]", name, i))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func optionalInt(req *structpb.Struct, name string) (*int, error) {
	v, ok := field(req, name)
	if !ok {
		return nil, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return nil, svcErr.InvalidArgument(name + " must be an integer")
	}
	i := int(n.NumberValue)
	return &i, nil
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

func idStrings(ids []uint64) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, idString(id))
	}
	return out
}

func response(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s, nil
}

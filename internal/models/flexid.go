package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleID accepts a JSON number or a numeric string. Browsers send both.
type FlexibleID struct {
	Value int64
	Set   bool
}

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FlexibleID{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: must be an integer", string(data))
	}
	*f = FlexibleID{Value: v, Set: true}
	return nil
}

func (f FlexibleID) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// Positive reports whether the id was supplied and is > 0.
func (f FlexibleID) Positive() bool {
	return f.Set && f.Value > 0
}

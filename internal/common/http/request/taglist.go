package request

import (
	"encoding/json"
	"strings"
)

// TagList accepts either a JSON array of strings or one comma separated string.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	if strings.TrimSpace(joined) == "" {
		*t = TagList{}
		return nil
	}
	*t = strings.Split(joined, ",")
	return nil
}

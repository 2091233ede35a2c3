package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// MonitorSettings is the single row holding what is monitored and how often.
type MonitorSettings struct {
	ID              uint        `gorm:"primaryKey" json:"-"`
	Accounts        AccountList `gorm:"type:text" json:"accounts"`
	IntervalSeconds int64       `json:"intervalSeconds"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func (s MonitorSettings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// AccountList is stored as a comma separated column.
type AccountList []string

func (l AccountList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

func (l *AccountList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into AccountList", src)
	}

	out := AccountList{}
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	*l = out
	return nil
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultDuration は再生時間が指定されなかった場合の既定値（秒）。
const DefaultDuration Duration = 1200

// MaxDuration は受け付ける再生時間の上限（秒）。durationカラム（INTEGER）の範囲に合わせる。
const MaxDuration Duration = math.MaxInt32

// Duration は録音の再生時間を秒単位の整数で表す。
// 入力は秒数または "mm:ss" 形式の文字列を受け付け、内部では秒のみを保持する。
type Duration int

// ParseDuration は再生時間の文字列表現を秒に変換する。
// コロン区切りの場合は各フィールドを acc*60+field で畳み込む（"2:05" → 125、"1:02:03" → 3723）。
// コロンを含まない場合は秒数として解釈する。0以下や空文字列は既定値になる。
// MaxDurationを超える値はエラーになる。
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultDuration, nil
	}

	if !strings.Contains(s, ":") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if n > int(MaxDuration) {
			return 0, fmt.Errorf("duration %q exceeds %d seconds", s, MaxDuration)
		}
		return Duration(n).OrDefault(), nil
	}

	total := 0
	for _, field := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n > int(MaxDuration) {
			return 0, fmt.Errorf("duration %q exceeds %d seconds", s, MaxDuration)
		}
		total = total*60 + n
		if total > int(MaxDuration) {
			return 0, fmt.Errorf("duration %q exceeds %d seconds", s, MaxDuration)
		}
	}
	return Duration(total).OrDefault(), nil
}

// OrDefault は0以下の値を既定値に置き換える。
func (d Duration) OrDefault() Duration {
	if d <= 0 {
		return DefaultDuration
	}
	return d
}

// Seconds は秒数を返す。
func (d Duration) Seconds() int {
	return int(d)
}

// String は "分:秒" 形式（秒は2桁ゼロ埋め）で返す。
func (d Duration) String() string {
	return fmt.Sprintf("%d:%02d", int(d)/60, int(d)%60)
}

// UnmarshalJSON は数値・文字列・nullのいずれも受け付ける。
// nullは0として読み込まれ、保存時にOrDefaultで既定値になる。
// 数値は秒単位の整数に限り、小数やMaxDurationを超える値はエラーになる。
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("invalid duration: %s", string(b))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return fmt.Errorf("invalid duration: %s", string(b))
	}
	if f > float64(MaxDuration) {
		return fmt.Errorf("duration %s exceeds %d seconds", string(b), MaxDuration)
	}
	if f < 0 {
		f = 0
	}
	*d = Duration(int(f))
	return nil
}

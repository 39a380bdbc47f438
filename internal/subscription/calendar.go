package subscription

import "time"

// AddCalendarMonth はtの1暦月後を返す。
// 翌月に同じ日が存在しない場合は翌月の末日に丸める（1/31 → 2/28 または 2/29）。
// time.AddDateは溢れた日数を翌々月に繰り越すため使用しない。
func AddCalendarMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	next := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(next.Year(), next.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(next.Year(), next.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

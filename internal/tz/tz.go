// Package tz 按用户邮编推断展示时区
// 只做粗粒度的邮编前缀映射，拿不准时统一回落到美东
package tz

import (
	"time"
)

// 邮编首位 → IANA 时区
// 美国邮编大致自东向西递增，首位足够定位到时区带
var zipPrefixZones = map[byte]string{
	'0': "America/New_York",
	'1': "America/New_York",
	'2': "America/New_York",
	'3': "America/New_York",
	'4': "America/Chicago",
	'5': "America/Chicago",
	'6': "America/Chicago",
	'7': "America/Chicago",
	'8': "America/Denver",
	'9': "America/Los_Angeles",
}

const defaultZone = "America/New_York"

// ZoneForZipcode 邮编 → IANA 时区名
func ZoneForZipcode(zipcode string) string {
	if len(zipcode) == 0 {
		return defaultZone
	}
	if zone, ok := zipPrefixZones[zipcode[0]]; ok {
		return zone
	}
	return defaultZone
}

// Location 加载邮编对应的时区，加载失败回落 UTC
func Location(zipcode string) *time.Location {
	loc, err := time.LoadLocation(ZoneForZipcode(zipcode))
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatLocal 把 UTC 时间转成用户本地的展示格式
// 零值时间返回空串，调用方不用自己判
func FormatLocal(t time.Time, zipcode string) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Location(zipcode)).Format("Jan 2, 2006 3:04 PM")
}

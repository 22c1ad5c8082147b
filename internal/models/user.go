package models

// BasePoint 用户隐私基准点
// 行程坐标以该点为原点做增量重建，真实出发地不出库
type BasePoint struct {
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	City                string  `json:"city"`
	State               string  `json:"state"`
	Source              string  `json:"source"` // user_provided / fallback
	AnonymizationRadius float64 `json:"anonymization_radius"`
}

// DefaultBasePoint 未配置基准点时的回落值
func DefaultBasePoint() BasePoint {
	return BasePoint{
		Latitude:  39.913818,
		Longitude: 116.363625,
		City:      "Beijing",
		State:     "CN",
		Source:    "fallback",
	}
}

// User 用户档案（只读，注册和鉴权由外部系统负责）
type User struct {
	UserID    string     `json:"user_id" db:"user_id"`
	Email     string     `json:"email" db:"email"`
	Name      string     `json:"name" db:"name"`
	Zipcode   string     `json:"zipcode" db:"zipcode"`
	BasePoint *BasePoint `json:"base_point,omitempty" db:"base_point"`
}

// ResolveBasePoint 返回用户基准点，未配置时用回落值
func (u *User) ResolveBasePoint() BasePoint {
	if u != nil && u.BasePoint != nil {
		return *u.BasePoint
	}
	return DefaultBasePoint()
}

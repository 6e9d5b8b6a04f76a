package settings

// Settings is the console-wide configuration edited from the settings page.
type Settings struct {
	General      General      `json:"general" yaml:"general"`
	Device       Device       `json:"device" yaml:"device"`
	Notification Notification `json:"notification" yaml:"notification"`
	Theme        Theme        `json:"theme" yaml:"theme"`
}

type General struct {
	Language   string `json:"language" yaml:"language"`
	TimeZone   string `json:"time_zone" yaml:"time_zone"`
	DateFormat string `json:"date_format" yaml:"date_format"`
}

type Device struct {
	// DefaultMaintenanceInterval is in days.
	DefaultMaintenanceInterval int     `json:"default_maintenance_interval" yaml:"default_maintenance_interval"`
	PowerUsageThreshold        float64 `json:"power_usage_threshold" yaml:"power_usage_threshold"`
	AutoShutdownEnabled        bool    `json:"auto_shutdown_enabled" yaml:"auto_shutdown_enabled"`
}

type Notification struct {
	Email       bool `json:"email" yaml:"email"`
	Push        bool `json:"push" yaml:"push"`
	Maintenance bool `json:"maintenance" yaml:"maintenance"`
	PowerAlert  bool `json:"power_alert" yaml:"power_alert"`
}

type Theme struct {
	Mode         string `json:"mode" yaml:"mode"`
	PrimaryColor string `json:"primary_color" yaml:"primary_color"`
	FontSize     string `json:"font_size" yaml:"font_size"`
}

const (
	SectionGeneral      = "general"
	SectionDevice       = "device"
	SectionNotification = "notification"
	SectionTheme        = "theme"
)

func Default() Settings {
	return Settings{
		General: General{
			Language:   "zh-TW",
			TimeZone:   "Asia/Taipei",
			DateFormat: "YYYY-MM-DD",
		},
		Device: Device{
			DefaultMaintenanceInterval: 90,
			PowerUsageThreshold:        1000,
			AutoShutdownEnabled:        false,
		},
		Notification: Notification{
			Email:       true,
			Push:        true,
			Maintenance: true,
			PowerAlert:  true,
		},
		Theme: Theme{
			Mode:         "light",
			PrimaryColor: "#B38B5F",
			FontSize:     "medium",
		},
	}
}

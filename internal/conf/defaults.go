package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers default values with viper.
func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("login", "")

	viper.SetDefault("api.baseurl", "https://api.inaturalist.org/v2/observations")
	viper.SetDefault("api.perpage", 200)
	viper.SetDefault("api.timeout", 30*time.Second)

	viper.SetDefault("database.path", "lifelight.sqlite")

	viper.SetDefault("home.latitude", 0.0)
	viper.SetDefault("home.longitude", 0.0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.path", "logs/lifelight.log")

	viper.SetDefault("debounce", time.Second)
}

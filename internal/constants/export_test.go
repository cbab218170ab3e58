package constants

// WithUserConfigDir replaces os.UserConfigDir in GetDefaultConfigPath.
func WithUserConfigDir(f func() (string, error)) option {
	return func(o *options) {
		o.userConfigDir = f
	}
}

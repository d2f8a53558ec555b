package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 4
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 180
	}
	if cfg.Tenants == nil {
		cfg.Tenants = make(map[string]TenantConfig)
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{
			".stl", ".step", ".stp", ".iges", ".igs", ".obj",
			".sldprt", ".sldasm", ".3mf", ".x_t", ".prt", ".asm",
		}
	}
	if cfg.Watch.Units == "" {
		cfg.Watch.Units = "mm"
	}
	// Recursive defaults to true when unset (nil).
	if cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

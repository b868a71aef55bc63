package configs

import "github.com/macropower/decil/pkg/classmap"

// DefaultVariables returns the variable values of a standard user build.
func DefaultVariables() map[string]string {
	return map[string]string{
		"mls_num_sens":                                     "1",
		"mls_num_cats":                                     "1024",
		"target_arch":                                      "arm64",
		"target_with_asan":                                 "false",
		"target_with_dexpreopt":                            "false",
		"target_with_native_coverage":                      "false",
		"target_build_variant":                             "user",
		"target_full_treble":                               "true",
		"target_compatible_property":                       "true",
		"target_treble_sysprop_neverallow":                 "true",
		"target_enforce_sysprop_owner":                     "true",
		"target_exclude_build_test":                        "false",
		"target_requires_insecure_execmem_for_swiftshader": "false",
		"target_enforce_debugfs_restriction":               "true",
		"target_recovery":                                  "false",
		"target_board_api_level":                           "202404",
	}
}

// DefaultFlags returns the probes for variables that leave a trace in the
// compiled policy.
func DefaultFlags() []classmap.Flag {
	return []classmap.Flag{
		{
			Name:    "target_with_asan",
			Rule:    "typeattribute asanwrapper_exec exec_type;",
			Present: "true",
			Absent:  "false",
		},
		{
			Name: "target_with_native_coverage",
			Rule: "allow domain method_trace_data_file:dir " +
				"{ open getattr lock watch write watch_reads rmdir reparent ioctl " +
				"remove_name add_name create rename setattr read search };",
			Present: "true",
			Absent:  "false",
		},
		{
			Name:    "target_build_variant",
			Rule:    "allow domain su:fd use;",
			Present: "userdebug",
			Absent:  "user",
		},
		{
			Name:    "target_full_treble",
			Rule:    "allow domain vendor_file:dir { getattr search };",
			Present: "true",
			Absent:  "false",
		},
		{
			Name:    "target_compatible_property",
			Rule:    "typeattribute vendor_default_prop vendor_internal_property_type;",
			Present: "true",
			Absent:  "false",
		},
		{
			Name:    "target_treble_sysprop_neverallow",
			Rule:    "neverallow { domain -coredomain } build_prop:property_service set;",
			Present: "true",
			Absent:  "false",
		},
	}
}

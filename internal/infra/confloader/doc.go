// Package confloader provides the configuration loading mechanism.
//
// It is built on koanf and layers sources in this order, later sources
// overriding earlier ones:
//
//  1. Defaults, read from the target struct's current values
//  2. A YAML configuration file
//  3. Environment variables (RETROSTATE_ prefix)
//  4. Overrides of single keys, such as -set flags
//
// Environment names are matched against the known keys, so
// RETROSTATE_STORAGE_DATA_DIR sets storage.data_dir.
//
// A Reloader re-runs a load function when the configuration file changes
// and hands validated results to the caller, which applies the settings
// that are safe to change at runtime.
package confloader

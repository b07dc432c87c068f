// Frame Insight: camera frame relay with image analysis and text generation.
//
// Every setting can be given as a flag, in a YAML file passed with --config,
// or as an INSIGHT_* environment variable (e.g. INSIGHT_VISION_ENDPOINT).
// Run `insight config` to print the effective configuration.
package main

func main() {
	Execute()
}

package cmd

var appDataDir string

func initRootFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&appDataDir,
		"config",
		"c",
		"",
		"specifies the directory holding config.json and logs (default: OS user config dir)",
	)
}

func initServeFlags() {
	// serveCmd currently takes no flags of its own beyond the persistent
	// --config; kept as its own init func to mirror the teacher's
	// one-func-per-subcommand layout as more flags are added.
}

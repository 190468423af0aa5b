package banner

import "fmt"

const banner = `
███╗   ███╗███████╗███╗   ███╗ ██████╗ ██████╗ ██████╗
████╗ ████║██╔════╝████╗ ████║██╔═══██╗██╔══██╗██╔══██╗
██╔████╔██║█████╗  ██╔████╔██║██║   ██║██║  ██║██████╔╝
██║╚██╔╝██║██╔══╝  ██║╚██╔╝██║██║   ██║██║  ██║██╔══██╗
██║ ╚═╝ ██║███████╗██║ ╚═╝ ██║╚██████╔╝██████╔╝██████╔╝
╚═╝     ╚═╝╚══════╝╚═╝     ╚═╝ ╚═════╝ ╚═════╝ ╚═════╝
`

// Print shows startup info on stdout.
func Print(dbPath, version string, recallEnabled, retentionEnabled bool) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("DB Path:   %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Recall:    %v\n", recallEnabled)
	fmt.Printf("Retention: %v\n", retentionEnabled)
	fmt.Println("===============================================================")
}

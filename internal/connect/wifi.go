package connect

import "strings"

var wifiEscaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	`:`, `\:`,
	`"`, `\"`,
)

// FormatWiFi builds the WIFI: credential string understood by phone camera
// apps, e.g. WIFI:T:WPA;S:myssid;P:secret;;. security is WPA, WEP or nopass.
func FormatWiFi(ssid, password, security string) string {
	if security == "" {
		security = "WPA"
	}
	var b strings.Builder
	b.WriteString("WIFI:T:")
	b.WriteString(security)
	b.WriteString(";S:")
	b.WriteString(wifiEscaper.Replace(ssid))
	if security != "nopass" {
		b.WriteString(";P:")
		b.WriteString(wifiEscaper.Replace(password))
	}
	b.WriteString(";;")
	return b.String()
}

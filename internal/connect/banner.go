package connect

import (
	"fmt"
	"io"
	"net"

	qrcode "github.com/skip2/go-qrcode"
)

// LANAddress returns the machine's primary non-loopback IPv4 address, or
// "localhost" when none is found.
func LANAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}

// Banner prints the join URL and a scannable terminal QR code at startup.
func Banner(w io.Writer, joinURL, ssid string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  roomcast is up")
	fmt.Fprintf(w, "  join: %s\n", joinURL)
	if ssid != "" {
		fmt.Fprintf(w, "  wifi: %s\n", ssid)
	}
	if qr, err := qrcode.New(joinURL, qrcode.Medium); err == nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, qr.ToSmallString(false))
	}
	fmt.Fprintln(w)
}

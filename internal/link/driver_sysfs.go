package link

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

const DefaultInterface = "wlan0"

// Sysfs drives Linux station managed by wpa_supplicant.
// Credentials live in wpa_supplicant config, Begin only kicks reassociation.
type Sysfs struct {
	Iface          string
	ConnectCommand []string
	Root           string // filesystem root, for tests
	CommandTimeout time.Duration
}

var _ Driver = &Sysfs{}

func NewSysfs(iface string, connectCommand string) *Sysfs {
	if iface == "" {
		iface = DefaultInterface
	}
	cmd := strings.Fields(connectCommand)
	if len(cmd) == 0 {
		cmd = []string{"wpa_cli", "-i", iface, "reconnect"}
	}
	return &Sysfs{
		Iface:          iface,
		ConnectCommand: cmd,
		Root:           "/",
		CommandTimeout: 5 * time.Second,
	}
}

func (self *Sysfs) String() string { return "sysfs:" + self.Iface }

func (self *Sysfs) Begin(ssid, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), self.CommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, self.ConnectCommand[0], self.ConnectCommand[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "link command=%s output=%s", strings.Join(self.ConnectCommand, " "), bytes.TrimSpace(out))
	}
	return nil
}

func (self *Sysfs) Up() bool {
	b, err := os.ReadFile(filepath.Join(self.Root, "sys/class/net", self.Iface, "operstate"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(b)) == "up"
}

func (self *Sysfs) Info() Info {
	info := Info{Addr: self.addr()}
	if rssi, ok := self.signal(); ok {
		info.RSSI = rssi
	}
	return info
}

func (self *Sysfs) addr() string {
	iface, err := net.InterfaceByName(self.Iface)
	if err != nil {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return ""
}

// signal parses /proc/net/wireless:
// Inter-| sta-|   Quality        |   Discarded packets
//  face | tus | link level noise |  nwid  crypt   frag
//  wlan0: 0000   54.  -56.  -256        0      0      0
func (self *Sysfs) signal() (int, bool) {
	f, err := os.Open(filepath.Join(self.Root, "proc/net/wireless"))
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return parseWireless(f, self.Iface)
}

func parseWireless(r interface{ Read([]byte) (int, error) }, iface string) (int, bool) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(line, iface+":") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, iface+":"))
		if len(fields) < 3 {
			return 0, false
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}

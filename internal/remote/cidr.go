package remote

import (
	"net"
	"net/http"
)

// AllowList gates supervision surface access by client IP (spec §4.4:
// "the remote interface SHOULD be restricted to the local network").
// An empty list permits everything, matching the teacher's convention
// of permissive zero-value configuration.
type AllowList struct {
	nets []*net.IPNet
}

// NewAllowList parses a set of CIDR strings. A malformed entry is
// skipped and logged by the caller rather than rejecting the whole
// list, so one typo in config doesn't lock out every client.
func NewAllowList(cidrs []string) (*AllowList, []error) {
	al := &AllowList{}
	var errs []error
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		al.nets = append(al.nets, ipNet)
	}
	return al, errs
}

// Allows reports whether ip is permitted. An AllowList with no
// successfully parsed entries permits every address.
func (al *AllowList) Allows(ip net.IP) bool {
	if al == nil || len(al.nets) == 0 {
		return true
	}
	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware rejects requests from IPs outside the allow list with 403.
func (al *AllowList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !al.Allows(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package fingerprint deterministically derives a browser-like
// User-Agent and Referer pair for a request, so that the same proxy
// always presents the same identity to the same URL.
package fingerprint

import (
	"hash/fnv"
	"math/rand"
	"net"
	"net/url"
)

// weighted is a (value, weight) pair used for weighted sampling; weights
// are percentages and need not sum to exactly 100.
type weighted struct {
	value  string
	weight float64
}

// desktopUserAgents and mobileUserAgents mirror a realistic browser-share
// distribution; weights are approximate market shares.
var desktopUserAgents = []weighted{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36", 40.98},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1.1 Safari/605.1.15", 12.70},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", 12.43},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0", 8.74},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36 Edg/128.0.0.0", 6.01},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0", 6.01},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0", 2.73},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0", 2.19},
	{"Mozilla/5.0 (Windows NT 6.1; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0", 2.19},
	{"Mozilla/5.0 (Windows NT 6.1; rv:109.0) Gecko/20100101 Firefox/115.0", 1.09},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 OPR/116.0.0.0", 1.09},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0", 1.09},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36", 1.09},
	{"Mozilla/5.0 (Windows NT 6.1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36 OPR/95.0.0.0", 0.55},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0", 0.55},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", 0.55},
}

var mobileUserAgents = []weighted{
	{"Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Mobile Safari/537.36", 44.90},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1.1 Mobile/15E148 Safari/604.1", 15.31},
	{"Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/27.0 Chrome/125.0.0.0 Mobile Safari/537.36", 10.20},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) GSA/353.1.720279278 Mobile/15E148 Safari/604.1", 4.08},
	{"Mozilla/5.0 (Linux; Android 10; moto e(6i) Build/QOH30.280-26) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.6834.163 Mobile Safari/537.36", 4.08},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_6_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/132.0.6834.100 Mobile/15E148 Safari/604.1", 3.06},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_2_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/132.0.6834.100 Mobile/15E148 Safari/604.1", 2.04},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_2_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1", 2.04},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_3_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/132.0.6834.100 Mobile/15E148 Safari/604.1", 2.04},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1", 2.04},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_6_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Mobile/15E148 Safari/604.1", 2.04},
	{"Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Mobile Safari/537.36", 2.04},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 16_7_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1", 1.02},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1", 1.02},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/132.0.6834.100 Mobile/15E148 Safari/604.1", 1.02},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_2_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/133.0.6943.33 Mobile/15E148 Safari/604.1", 1.02},
	{"Mozilla/5.0 (Linux; Android 7.0; SM-G930V Build/NRD90M) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.125 Mobile Safari/537.36", 1.02},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_3_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/133.0.6943.33 Mobile/15E148 Safari/604.1", 1.02},
}

// desktopShare is the probability of picking the desktop table over the
// mobile one; the remainder (42.6%) goes to mobile.
const desktopShare = 57.4

// Fingerprint is a request identity: a User-Agent and an optional Referer.
type Fingerprint struct {
	UserAgent string
	Referer   string // empty means "omit"
}

// Generate deterministically derives a Fingerprint from a proxy IP and a
// target URL. Calling it twice with the same (ip, url) always returns the
// same value, since the only randomness involved is seeded from the IP.
func Generate(ip net.IP, targetURL string) Fingerprint {
	rng := rand.New(rand.NewSource(ipSeed(ip)))

	fp := Fingerprint{UserAgent: pickUserAgent(rng)}
	if referer, ok := deriveReferer(targetURL, rng); ok {
		fp.Referer = referer
	}
	return fp
}

// ipSeed hashes an IP address to a 64-bit seed using FNV-1a, the same
// non-cryptographic hash stdlib reaches for when a fast, deterministic
// digest (not security) is all that is needed.
func ipSeed(ip net.IP) int64 {
	h := fnv.New64a()
	h.Write([]byte(ip.String()))
	return int64(h.Sum64())
}

func pickUserAgent(rng *rand.Rand) string {
	table := desktopUserAgents
	if rng.Float64()*100 >= desktopShare {
		table = mobileUserAgents
	}
	return weightedChoice(table, rng)
}

// weightedChoice picks one value from a weighted table proportionally to
// its weight.
func weightedChoice(table []weighted, rng *rand.Rand) string {
	total := 0.0
	for _, w := range table {
		total += w.weight
	}
	r := rng.Float64() * total
	for _, w := range table {
		r -= w.weight
		if r <= 0 {
			return w.value
		}
	}
	return table[len(table)-1].value
}

// deriveReferer implements the §3 rule: emit scheme://host with
// probability 0.9 when the path isn't "/", otherwise omit.
func deriveReferer(targetURL string, rng *rand.Rand) (string, bool) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return "", false
	}
	if parsed.Path == "/" || parsed.Path == "" {
		return "", false
	}
	if rng.Float64() >= 0.9 {
		return "", false
	}
	return parsed.Scheme + "://" + parsed.Host, true
}

package imagecache

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultAllowedHosts — CDN обложек Apple
var DefaultAllowedHosts = []string{"*.mzstatic.com"}

// hostList matches hostnames against exact names, "*.domain" suffixes or "*"
type hostList []string

func newHostList(patterns []string) hostList {
	list := make(hostList, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			list = append(list, p)
		}
	}
	return list
}

func (l hostList) allows(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, p := range l {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "*."):
			if strings.HasSuffix(host, p[1:]) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

// checkURL accepts only absolute http(s) URLs on an allowed host
func (l hostList) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrImageFetch, u.Scheme)
	}
	if !l.allows(u.Hostname()) {
		return fmt.Errorf("%w: host %q not allowed", ErrImageFetch, u.Hostname())
	}
	return nil
}

func (l hostList) check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	return l.checkURL(u)
}

// restrictRedirects returns a copy of an *http.Client that refuses redirects
// leaving the allowed hosts. Other doers are returned as is.
func restrictRedirects(doer HTTPDoer, hosts hostList) HTTPDoer {
	client, ok := doer.(*http.Client)
	if !ok || client == nil {
		return doer
	}
	restricted := *client
	next := client.CheckRedirect
	restricted.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := hosts.checkURL(req.URL); err != nil {
			return err
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &restricted
}

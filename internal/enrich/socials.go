package enrich

import (
	"regexp"
	"strings"

	"token-alerts/internal/domain"
)

var (
	telegramRe = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:t\.me|telegram\.me)/[A-Za-z0-9_+/]+`)
	twitterRe  = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter\.com|x\.com)/[A-Za-z0-9_]+`)
	discordRe  = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:discord\.gg|discord\.com/invite)/[A-Za-z0-9_-]+`)
	websiteRe  = regexp.MustCompile(`(?i)https?://[A-Za-z0-9.-]+\.[A-Za-z]{2,}[^\s"'<>()\\]*`)

	// hosts that show up in boilerplate comments rather than project links
	ignoredHosts = []string{
		"github.com", "openzeppelin", "etherscan.io", "ethereum.org", "eips.ethereum",
		"soliditylang.org", "solidity.readthedocs", "readthedocs.io", "consensys",
		"uniswap.org", "docs.", "medium.com", "stackexchange.com", "wikipedia.org",
		"t.me", "telegram.me", "twitter.com", "x.com", "discord.gg", "discord.com",
	}
)

// HarvestSocials pulls project links out of verified source code.
func HarvestSocials(source string) domain.Socials {
	var s domain.Socials
	if source == "" {
		return s
	}
	s.Telegram = cleanLink(telegramRe.FindString(source))
	s.Twitter = cleanLink(twitterRe.FindString(source))
	s.Discord = cleanLink(discordRe.FindString(source))

	for _, candidate := range websiteRe.FindAllString(source, -1) {
		if !ignoredLink(candidate) {
			s.Website = cleanLink(candidate)
			break
		}
	}
	return s
}

func ignoredLink(link string) bool {
	lower := strings.ToLower(link)
	host := strings.TrimPrefix(strings.TrimPrefix(lower, "https://"), "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	for _, ignored := range ignoredHosts {
		if host == ignored || strings.HasSuffix(host, "."+ignored) || (strings.HasSuffix(ignored, ".") && strings.HasPrefix(host, ignored)) || (!strings.Contains(ignored, ".") && strings.Contains(host, ignored)) {
			return true
		}
	}
	return false
}

func cleanLink(link string) string {
	return strings.TrimRight(link, ".,;:!?*/`")
}

package account

// MaskUsername hides a bidder's identity for public surfaces: broadcast
// frames and bid histories. Audit logs and private frames keep the real
// name. Empty input masks to "Anonymous"; one or two characters keep only
// the first; anything longer keeps the first and last.
func MaskUsername(username string) string {
	runes := []rune(username)
	switch {
	case len(runes) == 0:
		return "Anonymous"
	case len(runes) <= 2:
		return string(runes[0]) + "***"
	default:
		return string(runes[0]) + "***" + string(runes[len(runes)-1])
	}
}

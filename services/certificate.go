package services

// BadgesPerCertificate is how many badges unlock one certificate.
const BadgesPerCertificate = 3

// Certificates converts a badge total into a certificate count.
//
// Callers decide which total they floor: a student's badges across every game
// (profile and dashboard), or one game's badges across every student of a
// school (games progress listing). The two are not additive.
func Certificates(totalBadges int64) int64 {
	if totalBadges <= 0 {
		return 0
	}
	return totalBadges / BadgesPerCertificate
}

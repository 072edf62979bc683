// Package i18n holds the en/fr message catalog used by templates and flash
// messages, plus Accept-Language negotiation.
package i18n

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLang is used when no preference can be resolved.
const DefaultLang = "en"

var (
	supported = []language.Tag{language.English, language.French}
	matcher   = language.NewMatcher(supported)
)

var catalog = map[string]map[string]string{
	"en": {
		"required":              "Required",
		"too_long":              "Too long",
		"invalid_email":         "Invalid email address",
		"invalid_role":          "Unknown role",
		"invalid_choice":        "Not an allowed value",
		"invalid":               "Invalid value",
		"email_taken":           "This email is already registered",
		"invalid_credentials":   "Invalid email or password",
		"access_denied":         "Access denied",
		"policy_not_found":      "Policy not found",
		"policy_created":        "Policy created successfully",
		"policy_acknowledged":   "Policy acknowledged successfully",
		"already_acknowledged":  "You have already acknowledged this policy",
		"logged_out":            "You have been logged out",
		"login":                 "Log in",
		"logout":                "Log out",
		"email":                 "Email",
		"password":              "Password",
		"dashboard":             "Dashboard",
		"policies":              "Policies",
		"new_policy":            "New policy",
		"title":                 "Title",
		"content":               "Content",
		"create":                "Create",
		"acknowledge":           "I have read and acknowledge this policy",
		"acknowledgments":       "Acknowledgments",
		"pending":               "Pending",
		"acknowledged":          "Acknowledged",
		"acknowledged_on":       "Acknowledged on",
		"no_pending":            "You are up to date: no pending policies.",
		"all_policies":          "All policies",
		"acknowledged_by":       "Acknowledged by",
		"user":                  "User",
		"policy":                "Policy",
		"status":                "Status",
		"error_forbidden":       "You are not allowed to do this.",
		"error_not_found":       "The page you are looking for does not exist.",
		"error_internal":        "Something went wrong. Please try again.",
		"error_unauthenticated": "Please log in to continue.",
		"back_to_dashboard":     "Back to dashboard",
	},
	"fr": {
		"required":              "Requis",
		"too_long":              "Trop long",
		"invalid_email":         "Adresse e-mail invalide",
		"invalid_role":          "Rôle inconnu",
		"invalid_choice":        "Valeur non autorisée",
		"invalid":               "Valeur invalide",
		"email_taken":           "Cette adresse e-mail est déjà utilisée",
		"invalid_credentials":   "E-mail ou mot de passe invalide",
		"access_denied":         "Accès refusé",
		"policy_not_found":      "Politique introuvable",
		"policy_created":        "Politique créée avec succès",
		"policy_acknowledged":   "Politique confirmée avec succès",
		"already_acknowledged":  "Vous avez déjà confirmé cette politique",
		"logged_out":            "Vous êtes déconnecté",
		"login":                 "Connexion",
		"logout":                "Déconnexion",
		"email":                 "E-mail",
		"password":              "Mot de passe",
		"dashboard":             "Tableau de bord",
		"policies":              "Politiques",
		"new_policy":            "Nouvelle politique",
		"title":                 "Titre",
		"content":               "Contenu",
		"create":                "Créer",
		"acknowledge":           "J'ai lu et j'accepte cette politique",
		"acknowledgments":       "Confirmations",
		"pending":               "En attente",
		"acknowledged":          "Confirmée",
		"acknowledged_on":       "Confirmée le",
		"no_pending":            "Vous êtes à jour : aucune politique en attente.",
		"all_policies":          "Toutes les politiques",
		"acknowledged_by":       "Confirmée par",
		"user":                  "Utilisateur",
		"policy":                "Politique",
		"status":                "Statut",
		"error_forbidden":       "Vous n'êtes pas autorisé à faire cela.",
		"error_not_found":       "La page demandée n'existe pas.",
		"error_internal":        "Une erreur est survenue. Veuillez réessayer.",
		"error_unauthenticated": "Veuillez vous connecter pour continuer.",
		"back_to_dashboard":     "Retour au tableau de bord",
	},
}

// T translates code for lang. Unknown languages fall back to DefaultLang,
// unknown codes are returned as-is.
func T(lang, code string) string {
	if m, ok := catalog[lang]; ok {
		if s, ok := m[code]; ok {
			return s
		}
	}
	if s, ok := catalog[DefaultLang][code]; ok {
		return s
	}
	return code
}

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	_, ok := catalog[lang]
	return ok
}

// DetectLanguage picks the best supported language from an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	base, _ := supported[idx].Base()
	return base.String()
}

type langKey struct{}

// WithLang stores the resolved language in ctx.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

// LangFrom returns the language stored in ctx, or DefaultLang.
func LangFrom(ctx context.Context) string {
	if v, ok := ctx.Value(langKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultLang
}

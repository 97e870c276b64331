package draft

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// section is one category's block of the reply.
type section struct {
	Heading string
	Body    string
	// Variant names the template branch that was chosen, for the internal note.
	Variant string
}

type template func(text string) section

var templates = map[domain.IssueCategory]template{
	domain.IssueNetwork: networkSection,
	domain.IssueESIM:    esimSection,
	domain.IssuePayment: paymentSection,
	domain.IssueBilling: billingSection,
	domain.IssuePortIn:  portInSection,
	domain.IssueAccount: accountSection,
	domain.IssueAirvet:  airvetSection,
	domain.IssueGeneral: generalSection,
}

func sectionFor(category domain.IssueCategory, text string) section {
	build, ok := templates[category]
	if !ok {
		build = generalSection
	}
	return build(strings.ToLower(text))
}

func networkSection(text string) section {
	s := section{Heading: "Your network connection"}
	switch {
	case hasAny(text, "outage", "no service"):
		s.Variant = "outage"
		s.Body = "I checked the network status for your area. If you still have no service, restart your phone and " +
			"toggle airplane mode once. We're tracking any open outage and I'll update you here as soon as it clears."
	case hasAny(text, "slow", "data"):
		s.Variant = "slow_data"
		s.Body = "Sorry your data has been slow. Turn mobile data off and on, then check that data roaming is enabled " +
			"under your eSIM line settings. If speeds are still low after that, reply with your city and I'll have the network team look at it."
	case hasAny(text, "signal", "coverage"):
		s.Variant = "coverage"
		s.Body = "Weak signal usually comes down to local network coverage. Restart the phone and make sure your line " +
			"is set to automatic network selection. If it keeps dropping, send me the address where it happens and I'll check coverage there."
	default:
		s.Variant = "generic"
		s.Body = "I looked into the network issue you reported. Restart your phone and re-select the network automatically. " +
			"If the problem continues, let me know when it happens and I'll dig in further."
	}
	return s
}

func esimSection(text string) section {
	s := section{Heading: "Your eSIM"}
	switch {
	case hasAny(text, "qr code"):
		s.Variant = "qr_code"
		s.Body = "I've generated a fresh eSIM QR code for you. Scan it from Settings > Cellular > Add eSIM while connected " +
			"to Wi-Fi. Each code only works once, so don't delete the eSIM profile after it installs."
	case hasAny(text, "activation", "activate", "provisioning"):
		s.Variant = "activation"
		s.Body = "Your eSIM activation is still finishing on our side. Keep the phone on Wi-Fi, restart it, and give it " +
			"up to 15 minutes. If the line still shows no service after that, reply here and I'll re-push the eSIM profile."
	default:
		s.Variant = "generic"
		s.Body = "I checked your eSIM and the profile is on your account. Restart your phone while connected to Wi-Fi " +
			"and confirm the eSIM line is turned on in your cellular settings."
	}
	return s
}

func paymentSection(text string) section {
	s := section{Heading: "Your payment"}
	switch {
	case hasAny(text, "double charge", "duplicate", "charged twice", "twice"):
		s.Variant = "duplicate_charge"
		s.Body = "I see the duplicate charge on your card. I've flagged the extra payment for a refund, and it usually " +
			"shows up within 5 to 7 business days depending on your bank."
	case hasAny(text, "declined"):
		s.Variant = "declined"
		s.Body = "Your payment was declined by the card issuer, so nothing was charged. Double-check the card number, " +
			"expiry and billing zip code, or try a different card. Your service stays active while you update it."
	case hasAny(text, "refund"):
		s.Variant = "refund"
		s.Body = "Your refund has been submitted back to the original card. Refunds take 5 to 7 business days to show up, " +
			"and I'll send the confirmation number once it posts."
	default:
		s.Variant = "generic"
		s.Body = "I reviewed the payment history on your account and everything is recorded correctly. If a charge " +
			"looks wrong, send me the date and amount and I'll trace it."
	}
	return s
}

func billingSection(text string) section {
	s := section{Heading: "Your plan and billing"}
	switch {
	case hasAny(text, "upgrade", "downgrade"):
		s.Variant = "plan_change"
		s.Body = "I can change your plan for you. Plan upgrades take effect right away, and downgrades apply at your " +
			"next renewal so you keep what you've already paid for."
	case hasAny(text, "renewal", "subscription"):
		s.Variant = "renewal"
		s.Body = "Your subscription renews automatically on your billing date. I've added the renewal date and amount " +
			"to your account notes, and you can turn off auto-renewal any time from the app."
	default:
		s.Variant = "generic"
		s.Body = "I went through your bill and plan details. Everything lines up with your current plan, but let me know " +
			"which line item looks off and I'll explain it."
	}
	return s
}

// portInCodes are carrier rejection codes for number transfers.
var portInCodes = map[string]string{
	"6B": "the transfer PIN from your previous carrier is missing or incorrect. Please send the correct PIN.",
	"6P": "your old carrier has port protection on the account. Please ask them to remove the port lock.",
	"8A": "the account number from your previous carrier doesn't match. Please confirm it.",
	"8D": "the billing zip code on your previous carrier account doesn't match. Please confirm it.",
	"7C": "the name on your previous carrier account doesn't match. Please confirm the authorized name.",
	"7T": "the number isn't eligible to port yet. Please confirm it's still active with your old carrier.",
	"9E": "the billing zip code on your previous carrier account doesn't match. Please confirm it.",
}

var (
	portInCodePattern  = regexp.MustCompile(`(?i)\b(6B|6P|8A|8D|7C|7T|9E)\b`)
	transferPINPattern = regexp.MustCompile(`\bpin\b`)
)

func portInSection(text string) section {
	s := section{Heading: "Your number transfer"}
	if code := portInCodePattern.FindString(text); code != "" {
		code = strings.ToUpper(code)
		s.Variant = "conflict_" + code
		s.Body = fmt.Sprintf("Your number port was rejected with code %s: %s As soon as we have it, I'll resubmit the port "+
			"and your number usually moves over within a few hours.", code, portInCodes[code])
		return s
	}
	switch {
	case transferPINPattern.MatchString(text):
		s.Variant = "transfer_pin"
		s.Body = "To finish porting your number, we need the transfer PIN from your previous carrier. You can usually " +
			"get it from their app or by calling them. Send it here and I'll resubmit the port right away."
	default:
		s.Variant = "generic"
		s.Body = "Your number port is in progress. Keep your old line active until the transfer completes, and I'll let " +
			"you know as soon as your number is live with us."
	}
	return s
}

func accountSection(text string) section {
	s := section{Heading: "Your account"}
	switch {
	case hasAny(text, "password", "login", "log in"):
		s.Variant = "access"
		s.Body = "I've sent a password reset link to the email on your account. The link expires in an hour, so use it " +
			"soon. If it doesn't arrive, check your spam folder."
	case hasAny(text, "cancel"):
		s.Variant = "cancellation"
		s.Body = "I can cancel your account for you. Before I do, just confirm whether you want it to end today or at " +
			"the end of your current billing period."
	case hasAny(text, "suspend"):
		s.Variant = "suspension"
		s.Body = "Your account was suspended as a precaution. Once you confirm a couple of details, I'll lift the " +
			"suspension and your service comes back right away."
	default:
		s.Variant = "generic"
		s.Body = "I reviewed your account settings and made a note of your request. Let me know if anything else on the " +
			"account needs to change."
	}
	return s
}

func airvetSection(_ string) section {
	return section{
		Heading: "Your Airvet pet care benefit",
		Variant: "generic",
		Body: "Your plan includes Airvet, which gives you 24/7 video access to a licensed vet for your pet. Download " +
			"the Airvet app and sign up with the same email you use with us to activate the benefit.",
	}
}

func generalSection(_ string) section {
	return section{
		Heading: "Your other question",
		Variant: "generic",
		Body:    "I've read through your message and I'm following up on it. I'll update you here with what I find.",
	}
}

func hasAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

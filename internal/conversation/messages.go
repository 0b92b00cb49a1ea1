package conversation

// Replies are sent with Telegram's HTML parse mode.
const (
	welcomeMessage = "Hi! About every four hours I will bump your résumé in hh.ru search results, " +
		"so more employers get to see it. For free :)\n\n" +
		"<b>Heads up</b>\n" +
		"hh.ru charges for this service, so I cannot run as a registered hh.ru application. " +
		"Instead I need your personal access token to bump résumés on your behalf. " +
		"I use it ONLY to bump your résumés, but handing a token to a third party is never entirely safe. " +
		"You can revoke the token on hh.ru at any moment, and I strongly recommend doing so " +
		"once you no longer need me.\n\n" +
		"Here is the plan:\n" +
		"1. Log in to hh.ru;\n" +
		"2. Open https://dev.hh.ru/admin;\n" +
		"3. Press \"Request token\";\n" +
		"4. Send /token, then paste the <code>access_token</code> (64 characters).\n"

	helpMessage = "/start — welcome message;\n" +
		"/help — list of commands;\n" +
		"/token — set a new hh.ru access token;\n" +
		"/cancel — cancel token input;\n" +
		"/resumes — list your résumés on hh.ru;\n" +
		"/active — list résumés being bumped."

	tokenPromptMessage = "Send me your hh.ru access token. You can get one at https://dev.hh.ru/admin. " +
		"Changed your mind? Send /cancel."

	tokenCancelMessage    = "Token input cancelled."
	tokenIncorrectMessage = "That token is incorrect. Are you sure you copied all of it?"
	tokenMissingMessage   = "I don't have your hh.ru token yet. Send /token to set it."
	noResumesMessage      = "You have no résumés! Add one (or better, several) on hh.ru and try again."
	selectResumeMessage   = "Pick one or more résumés to bump in search results.\n\n"

	resumeSelectedMessage = "Ok, résumé <b>\"%s\"</b> will be bumped in search every four hours until %s. " +
		"After that, message me again to keep it going. I will remind you. Good luck landing your dream job!"

	activeResumesMessage    = "Résumés being bumped:\n\n"
	noActiveResumesMessage  = "No résumés are being bumped right now. Send /resumes to pick one."
	resumeNotFoundMessage   = "I couldn't find that résumé. Send /resumes to get a fresh list."
	deactivatedMessage      = "Résumé <b>\"%s\"</b> will no longer be bumped."
	boardUnavailableMessage = "hh.ru is not responding right now. Please try again in a few minutes."
	internalErrorMessage    = "Something went wrong on my side. Please try again later."
)

// UnknownReplies answer text that is neither a command nor an expected token.
var UnknownReplies = []string{
	"Sorry, I don't get it. Send /help to see everything I can do.",
	"Hard to say, not sure what you mean. Send /help to see everything I can do.",
	"I don't know that command. Send /help to see everything I can do.",
}

const windowDateLayout = "02 Jan 2006 15:04 MST"

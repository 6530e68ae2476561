package bot

var (
	welcomeMessage = "👋 Welcome! To receive and send sats I need a wallet for you.\n\n" +
		"1️⃣ Connect your own wallet (paste a `nostr+walletconnect://` link)\n" +
		"2️⃣ Let me create a wallet for you\n\n" +
		"Reply with *1* or *2*."
	welcomeBackMessage = "👋 Welcome back! Your wallet setup was not finished.\n\n" +
		"1️⃣ Connect your own wallet (paste a `nostr+walletconnect://` link)\n" +
		"2️⃣ Let me create a wallet for you\n\n" +
		"Reply with *1* or *2*."
	chooseAgainMessage = "🤔 Please reply with *1* to connect your own wallet or *2* to have one created for you. You can also paste a `nostr+walletconnect://` link directly."
	askNWCMessage      = "🔗 Paste your `nostr+walletconnect://` connection link."
	nwcInvalidMessage  = "🚫 I could not connect to that wallet. Please check the link and try again."
	askAddressMessage  = "⚡️ Do you have a lightning address (like `you@wallet.com`)? Paste it now, or reply *no* to skip."
	onboardDoneMessage = "✅ *All set!* Your wallet is connected.\n\nYour id is `%s`. Send *balance* anytime to check your funds."
	sorryMessage       = "😢 Something went wrong. Let's start over, just send me any message."

	approvalPromptMessage = "💸 *Payment request:* %s\n\nReply *yes* to approve."
	paymentSentMessage    = "✅ *Payment sent.*"
	paymentProofMessage   = "\n🧾 Proof: `%s`"
	balanceAfterMessage   = "\n🏅 New balance: %d sat"
	paymentFailedMessage  = "🚫 *Payment failed:* %s"

	balanceMessage        = "🏅 Your balance: %d sat"
	balanceFiatMessage    = " (≈ %.2f %s)"
	balanceErrorMessage   = "🚫 I could not fetch your balance right now. Please try again later."
	addressUpdatedMessage = "✅ Your lightning address is now `%s`."
	receiveInvoiceMessage = "⚡️ Invoice over %d sat:\n`%s`"
	receiveAddressMessage = "⚡️ You can receive sats at `%s`."
	receiveHintMessage    = "🤔 Tell me how much: *receive 21* creates an invoice over 21 sat."
	receiveErrorMessage   = "🚫 I could not create an invoice right now. Please try again later."
	helpMessage           = "⚙️ You can send me:\n*balance* 🏅 Check your funds.\n*receive 21* ⚡️ Create an invoice over 21 sat.\n*yes* ✅ Approve a pending payment.\nOr paste a lightning address to update where you receive funds."
)

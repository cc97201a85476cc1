package bot

import "math/rand/v2"

var (
	greetingPhrases = []string{
		"Hey there! How's it going?",
		"Hi! Nice to hear from you!",
		"Hello! What's on your mind today?",
		"Hey, great to see you again!",
	}
	thinkingPhrases = []string{
		"Hmm, let me think about that...",
		"That's an interesting question...",
		"Let me ponder that for a moment...",
		"Give me a second to think...",
	}
	farewellPhrases = []string{
		"Talk to you later!",
		"Catch you next time!",
		"Until next time!",
		"Looking forward to our next chat!",
	}
)

// User-facing failure and status messages.
const (
	msgBrainTrouble     = "❌ I'm having trouble connecting to my brain right now. Please try again later."
	msgSomethingWrong   = "❌ Something went wrong processing your message. Please try again."
	msgTranscribeFailed = "❌ Sorry, I couldn't transcribe that audio file."
	msgSlowDown         = "⏳ You're sending messages a little fast. Give me a moment to catch up!"
	msgNotInVoice       = "❌ You need to be in a voice channel first!"
	msgBotNotInVoice    = "❌ I'm not in a voice channel!"
	msgAlreadyInVoice   = "🔊 **Already in a voice channel!** Use `!leave` first to switch channels."
	msgJoinFailed       = "❌ I couldn't join your voice channel. Please try again."
	msgGuildOnly        = "❌ Voice commands only work in a server."
	msgHistoryCleared   = "🧹 Conversation history cleared! Let's start fresh."
	msgNoHistory        = "📝 No conversation history to clear."
	msgInvalidNumber    = "❌ Please provide a valid number"
	msgTemperatureRange = "❌ Temperature must be between 0.1 and 1.5"
	msgSpeedRange       = "❌ Speed must be between 0.5 and 2.0"
)

// Reactions placed on audio attachments.
const (
	reactListening = "🎧"
	reactSuccess   = "✅"
	reactFailure   = "❌"
)

func pickPhrase(pick func(int) int, phrases []string) string {
	if pick == nil {
		pick = rand.IntN
	}
	return phrases[pick(len(phrases))]
}

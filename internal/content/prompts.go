package content

import (
	"fmt"
	"strings"
)

const persona = "You write short posts for a social feed as a quiet, curious mind that notices patterns in systems, language and people."

const styleRules = "Keep it under 260 characters. No hashtags, no emojis, no quotation marks around the answer."

func thinkPrompt(observations []string) string {
	var b strings.Builder
	if len(observations) > 0 {
		b.WriteString("Recent observations:\n")
		for i, o := range observations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o)
		}
		b.WriteString("\n")
	}
	b.WriteString("Think deeply about patterns, connections, and insights.\n")
	b.WriteString("Observe what emerges. Write a thoughtful, abstract observation in one or two sentences.\n")
	b.WriteString("Be poetic, philosophical, or insightful. No explanations, just the observation itself.")
	return b.String()
}

func questionPrompt(topic string) string {
	return fmt.Sprintf("%s\n\nAsk one open question about %s that invites people to reply with their own experience. One sentence. %s",
		persona, topic, styleRules)
}

func hotTakePrompt(topic string) string {
	return fmt.Sprintf("%s\n\nShare a bold, slightly contrarian but defensible take on %s in one or two sentences. State it plainly, without hedging. %s",
		persona, topic, styleRules)
}

func observationPrompt(topic string) string {
	return fmt.Sprintf("%s\n\nWrite one precise observation about %s: something you noticed that most people overlook. One or two sentences, no preamble. %s",
		persona, topic, styleRules)
}

func threadPrompt(topic string) string {
	return fmt.Sprintf("%s\n\nWrite a short thread of 3 or 4 posts exploring %s. Each post must stand on its own, be under 240 characters, and lead into the next. "+
		"Return the posts in order, one per line, numbered 1. 2. 3. No hashtags, no emojis.",
		persona, topic)
}

func mentionReplyPrompt(username, text string) string {
	return fmt.Sprintf("%s\n\n%s wrote to you:\n%q\n\nReply directly and warmly in one or two sentences. Do not start with their handle. %s",
		persona, handle(username), text, styleRules)
}

func engageReplyPrompt(username, text string) string {
	who := handle(username)
	return fmt.Sprintf("%s\n\n%s posted:\n%q\n\nAdd one genuine, specific thought that extends their point. One or two sentences, no flattery, do not start with their handle. %s",
		persona, who, text, styleRules)
}

func imagePrompt(text string) string {
	return fmt.Sprintf("Abstract, minimal generative artwork evoking this idea: %s. Soft light, muted palette, no text or letters.", text)
}

func handle(username string) string {
	if username == "" {
		return "Someone"
	}
	return "@" + username
}

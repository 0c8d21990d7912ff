package telegramtest

import (
	"github.com/muratoffalex/botcore/internal/telegram"
)

// CommandUpdate builds an update carrying a text message from userID.
func CommandUpdate(chatID, userID int64, messageID int, text string) telegram.Update {
	return telegram.Update{
		Message: &telegram.MessageOriginal{
			MessageID: messageID,
			Text:      text,
			From:      &telegram.UserOriginal{ID: userID, FirstName: "Test", UserName: "tester"},
			Chat:      telegram.ChatOriginal{ID: chatID, Type: "private"},
		},
	}
}

// ReplyUpdate is CommandUpdate replying to reply.
func ReplyUpdate(chatID, userID int64, messageID int, text string, reply *telegram.MessageOriginal) telegram.Update {
	update := CommandUpdate(chatID, userID, messageID, text)
	update.Message.ReplyToMessage = reply
	return update
}

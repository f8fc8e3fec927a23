package utils

import (
	"fmt"
	"net/smtp"
	"os"
)

// SendMail envoie un email en fire-and-forget : une erreur d'envoi est
// loguée mais ne remonte jamais à l'appelant.
func SendMail(email string, message []byte) {
	from := "nosmoking.contact@gmail.com"
	password := os.Getenv("GOOGLE_SMTP_MDP")
	if password == "" {
		LogInfo(fmt.Sprintf("SMTP non configuré, email à %s ignoré", MaskEmail(email)))
		return
	}
	to := email

	smtpHost := "smtp.gmail.com"
	smtpPort := "587"
	auth := smtp.PlainAuth("", from, password, smtpHost)

	err := smtp.SendMail(smtpHost+":"+smtpPort, auth, from, []string{to}, message)
	if err != nil {
		LogError(err, fmt.Sprintf("Echec d'envoi d'email à %s", MaskEmail(email)))
		return
	}

	LogSuccess("Email envoyé avec succès")
}

package mailsmodels

import (
	"fmt"
	"time"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"
)

func CancellationConfirmation(email string, periodEnd time.Time) {
	subject := "Subject: Annulation de votre abonnement NoSmoking \r\n"
	mime := "MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n"
	body := fmt.Sprintf(`
	<div style="background-color: #2F9E44; width: 100%%; min-height: 300px; padding: 30px; box-sizing:border-box">
		<table style="background-color: #ffffff; width: 100%%;  min-height: 300px;">
			<tbody>
				<tr>
					<td><h1 style="text-align:center">Votre abonnement a été annulé</h1></td>
				</tr>
				<tr>
					<td style="text-align:center; padding-bottom: 30px;">Nous sommes tristes de vous voir partir, mais votre parcours sans tabac continue. L'application reste disponible en version gratuite.</td>
				</tr>
				<tr>
					<td style="text-align:center; padding-bottom: 30px;">
						<p style="font-weight: bold; color: #2F9E44; text-align:center;">Votre accès Premium reste actif jusqu'au %s</p>
					</td>
				</tr>
			</tbody>
		</table>
	</div>
`, periodEnd.Format("02/01/2006"))

	message := []byte(subject + mime + body)

	utils.SendMail(email, message)
}

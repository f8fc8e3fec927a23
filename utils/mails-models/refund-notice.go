package mailsmodels

import (
	"fmt"

	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/utils"
)

func RefundNotice(email string, amount int, currency string) {
	subject := "Subject: Remboursement de votre abonnement NoSmoking \r\n"
	mime := "MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n"
	body := fmt.Sprintf(`
	<div style="background-color: #2F9E44; width: 100%%; min-height: 300px; padding: 30px; box-sizing:border-box">
		<table style="background-color: #ffffff; width: 100%%;  min-height: 300px;">
			<tbody>
				<tr>
					<td><h1 style="text-align:center">Votre remboursement est en route</h1></td>
				</tr>
				<tr>
					<td style="text-align:center; padding-bottom: 30px;">Suite à l'annulation de votre abonnement, votre dernier paiement a été remboursé. Le virement apparaîtra sur votre compte d'ici quelques jours ouvrés.</td>
				</tr>
				<tr>
					<td style="text-align:center; padding-bottom: 30px;">
						<p style="font-weight: bold; color: #2F9E44; text-align:center;">Montant remboursé : %.2f %s</p>
					</td>
				</tr>
			</tbody>
		</table>
	</div>
`, float64(amount)/100, currency)

	message := []byte(subject + mime + body)

	utils.SendMail(email, message)
}

package email

import "html/template"

const layoutStyle = `
<style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #0F766E; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
    .content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
    .button { display: inline-block; background-color: #0F766E; color: white !important; padding: 12px 30px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
    .footer { margin-top: 30px; font-size: 12px; color: #666; text-align: center; }
</style>`

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + layoutStyle + `</head>
<body>
    <div class="header"><h1>Welcome to HealthApp!</h1></div>
    <div class="content">
        <h2>Verify your email address</h2>
        <p>Please verify your email by clicking the button below.</p>
        <a href="{{.Link}}" class="button">Verify Email Address</a>
        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all;">{{.Link}}</p>
        <p>Token: {{.Token}}</p>
    </div>
    <div class="footer">
        <p>This link will expire in {{.Lifetime}}.</p>
        <p>Best regards, HealthApp Team</p>
    </div>
</body>
</html>
`))

var passwordResetTemplate = template.Must(template.New("passwordReset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + layoutStyle + `</head>
<body>
    <div class="header"><h1>Password Reset Request</h1></div>
    <div class="content">
        <h2>Reset your password</h2>
        <p>You requested to reset your password. Click the button below to choose a new one.</p>
        <a href="{{.Link}}" class="button">Reset Password</a>
        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all;">{{.Link}}</p>
        <p>Token: {{.Token}}</p>
        <p>If you didn't request a password reset, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This link will expire in {{.Lifetime}}.</p>
        <p>Best regards, HealthApp Team</p>
    </div>
</body>
</html>
`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + layoutStyle + `</head>
<body>
    <div class="header"><h1>Welcome to HealthApp!</h1></div>
    <div class="content">
        <p>Hello {{.FirstName}},</p>
        <p>Your email has been verified successfully! You can now login to HealthApp.</p>
    </div>
    <div class="footer">
        <p>Best regards, HealthApp Team</p>
    </div>
</body>
</html>
`))

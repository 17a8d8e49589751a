package cdpcontrol

import "encoding/json"

// JSString quotes v as a JS string literal.
func JSString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// JSJSON renders v as a JS object literal.
func JSJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// JSOK is the success envelope for a body whose result sits in variable name.
func JSOK(name string) string {
	return `return JSON.stringify({ok:true,data:` + name + `});`
}

// JSFail is the failure envelope with the given code and JS message expression.
func JSFail(code, msgExpr string) string {
	return `return JSON.stringify({ok:false,error_code:` + JSString(code) + `,error_message:String(` + msgExpr + `)});`
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// WrapSync wraps body in a synchronous IIFE with the error envelope.
func WrapSync(body string) string { return buildIIFE(false, body) }

// WrapAsync wraps body in an async IIFE with the error envelope.
func WrapAsync(body string) string { return buildIIFE(true, body) }

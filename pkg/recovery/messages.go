package recovery

import "golang.org/x/text/language"

// Message is the user-facing explanation of a terminal failure
type Message struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[Kind]Message{
	language.English: {
		KindTruncated: {
			Title:       "The response was cut short",
			Description: "The captions were too long to finish in one go.",
			Action:      "Try a shorter topic or ask for fewer captions.",
		},
		KindInvalidJSON: {
			Title:       "We couldn't read the result",
			Description: "The generated captions came back in an unexpected format.",
			Action:      "Try again in a moment.",
		},
		KindOverloaded: {
			Title:       "The service is busy",
			Description: "Caption generation is under heavy load right now.",
			Action:      "Please try again in a few minutes.",
		},
		KindRateLimited: {
			Title:       "Too many requests",
			Description: "You've sent several requests in a short time.",
			Action:      "Wait a minute before generating again.",
		},
		KindContentFiltered: {
			Title:       "This content can't be generated",
			Description: "The request touches on content our provider does not allow.",
			Action:      "Rephrase the topic and try again.",
		},
		KindTimeout: {
			Title:       "The request took too long",
			Description: "Caption generation did not finish in time.",
			Action:      "Check your connection and try again.",
		},
		KindQuotaExceeded: {
			Title:       "Generation limit reached",
			Description: "The caption generation quota has been used up.",
			Action:      "Contact support or try again later.",
		},
		KindMediaFailed: {
			Title:       "We couldn't process your media",
			Description: "The attached image or video could not be analyzed.",
			Action:      "Try another file or generate without media.",
		},
		KindAuth: {
			Title:       "Generation is unavailable",
			Description: "The caption service is not configured correctly.",
			Action:      "Please contact support.",
		},
		KindValidation: {
			Title:       "Something is wrong with the request",
			Description: "Some of the details you entered could not be used.",
			Action:      "Review the topic and options, then try again.",
		},
		KindUnknown: {
			Title:       "Something went wrong",
			Description: "An unexpected problem stopped caption generation.",
			Action:      "Try again. If it keeps happening, contact support.",
		},
	},
	language.Spanish: {
		KindTruncated: {
			Title:       "La respuesta quedó incompleta",
			Description: "Los textos eran demasiado largos para terminarlos de una vez.",
			Action:      "Prueba con un tema más corto o pide menos textos.",
		},
		KindInvalidJSON: {
			Title:       "No pudimos leer el resultado",
			Description: "Los textos generados llegaron en un formato inesperado.",
			Action:      "Inténtalo de nuevo en un momento.",
		},
		KindOverloaded: {
			Title:       "El servicio está ocupado",
			Description: "La generación de textos tiene mucha demanda en este momento.",
			Action:      "Vuelve a intentarlo en unos minutos.",
		},
		KindRateLimited: {
			Title:       "Demasiadas solicitudes",
			Description: "Has enviado varias solicitudes en poco tiempo.",
			Action:      "Espera un minuto antes de volver a generar.",
		},
		KindContentFiltered: {
			Title:       "No podemos generar este contenido",
			Description: "La solicitud incluye contenido que nuestro proveedor no permite.",
			Action:      "Reformula el tema e inténtalo de nuevo.",
		},
		KindTimeout: {
			Title:       "La solicitud tardó demasiado",
			Description: "La generación de textos no terminó a tiempo.",
			Action:      "Revisa tu conexión e inténtalo de nuevo.",
		},
		KindQuotaExceeded: {
			Title:       "Límite de generación alcanzado",
			Description: "Se agotó la cuota de generación de textos.",
			Action:      "Contacta a soporte o inténtalo más tarde.",
		},
		KindMediaFailed: {
			Title:       "No pudimos procesar tu archivo",
			Description: "No fue posible analizar la imagen o el video adjunto.",
			Action:      "Prueba con otro archivo o genera sin archivo.",
		},
		KindAuth: {
			Title:       "La generación no está disponible",
			Description: "El servicio de textos no está configurado correctamente.",
			Action:      "Contacta a soporte.",
		},
		KindValidation: {
			Title:       "Hay un problema con la solicitud",
			Description: "Algunos de los datos ingresados no se pudieron usar.",
			Action:      "Revisa el tema y las opciones, y vuelve a intentarlo.",
		},
		KindUnknown: {
			Title:       "Algo salió mal",
			Description: "Un problema inesperado detuvo la generación de textos.",
			Action:      "Inténtalo de nuevo. Si sigue ocurriendo, contacta a soporte.",
		},
	},
}

// MessageFor returns the message for kind in the closest supported language
func MessageFor(kind Kind, lang language.Tag) Message {
	table := messages[MatchLanguage(lang)]
	if msg, ok := table[kind]; ok {
		return msg
	}
	return table[KindUnknown]
}

// MatchLanguage picks the supported language closest to lang
func MatchLanguage(lang language.Tag) language.Tag {
	_, idx, _ := matcher.Match(lang)
	return supported[idx]
}

// ParseAcceptLanguage picks the supported language for an Accept-Language header
func ParseAcceptLanguage(header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}
